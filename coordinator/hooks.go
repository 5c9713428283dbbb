package coordinator

import "github.com/sarchlab/i2cm/hooking"

// Hook positions of the coordinator.
var (
	// HookPosRequestSent triggers after a request went out. Item is a Request.
	HookPosRequestSent = &hooking.HookPos{Name: "RequestSent"}

	// HookPosBusFault triggers when the driver reported an error while
	// sending or arming the receive. Item is the error.
	HookPosBusFault = &hooking.HookPos{Name: "BusFault"}

	// HookPosReplyReceived triggers when a reply was drained. Item is the
	// Response.
	HookPosReplyReceived = &hooking.HookPos{Name: "ReplyReceived"}

	// HookPosRequestExpired triggers when a request timed out. Item is the
	// Response.
	HookPosRequestExpired = &hooking.HookPos{Name: "RequestExpired"}

	// HookPosResponseFetched triggers when the application consumed the
	// outcome. Item is the Response.
	HookPosResponseFetched = &hooking.HookPos{Name: "ResponseFetched"}
)

func (c *Comp) invoke(pos *hooking.HookPos, item interface{}) {
	if c.NumHooks() == 0 {
		return
	}

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    pos,
		Item:   item,
		State:  c.state,
	})
}
