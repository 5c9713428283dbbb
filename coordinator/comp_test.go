package coordinator

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/i2cm/hooking"
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/twowire"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Coordinator", func() {
	var (
		mockCtrl  *gomock.Controller
		driver    *MockDriver
		clock     *timing.ManualClock
		comp      *Comp
		rx        []byte
		failReads bool
	)

	expectSend := func(addr twowire.Address, msg []byte) {
		gomock.InOrder(
			driver.EXPECT().BeginTransmission(addr),
			driver.EXPECT().Write(msg).Return(len(msg), nil),
			driver.EXPECT().EndTransmission().Return(nil),
			driver.EXPECT().RequestFrom(addr, MaxMessageSize).Return(nil),
		)
	}

	submit := func(addr twowire.Address, msg string) {
		expectSend(addr, []byte(msg))

		n, err := comp.SubmitRequest(addr, []byte(msg))

		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(len(msg)))
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		driver = NewMockDriver(mockCtrl)
		clock = timing.NewManualClock(1000)
		rx = nil
		failReads = false

		driver.EXPECT().
			Available().
			DoAndReturn(func() int { return len(rx) }).
			AnyTimes()
		driver.EXPECT().
			ReadByte().
			DoAndReturn(func() (byte, error) {
				if failReads {
					return 0, twowire.ErrNoData
				}

				b := rx[0]
				rx = rx[1:]

				return b, nil
			}).
			AnyTimes()

		comp = MakeBuilder().
			WithDriver(driver).
			WithClock(clock).
			WithTimeout(50 * time.Millisecond).
			Build("Coordinator")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start idle", func() {
		Expect(comp.State()).To(Equal(StateIdle))
		Expect(comp.IsReady()).To(BeTrue())
		Expect(comp.HasReply()).To(BeFalse())
		Expect(comp.Name()).To(Equal("Coordinator"))
		Expect(comp.Timeout()).To(Equal(50 * time.Millisecond))
	})

	Context("setup", func() {
		It("should set the clock divisor before starting the controller", func() {
			gomock.InOrder(
				driver.EXPECT().SetClockDivisor(uint8(72)),
				driver.EXPECT().BeginController().Return(nil),
			)

			Expect(comp.Setup(twowire.StandardMode)).To(Succeed())
			Expect(comp.State()).To(Equal(StateIdle))
		})

		It("should reject a frequency the divisor cannot reach", func() {
			err := comp.Setup(4 * timing.MHz)

			Expect(err).To(MatchError(twowire.ErrInvalidFrequency))
		})

		It("should report driver errors", func() {
			driver.EXPECT().SetClockDivisor(uint8(12))
			driver.EXPECT().BeginController().Return(errors.New("no bus"))

			Expect(comp.Setup(twowire.FastMode)).To(MatchError("no bus"))
		})

		It("should discard an outstanding request", func() {
			submit(8, "PING")
			driver.EXPECT().SetClockDivisor(gomock.Any())
			driver.EXPECT().BeginController().Return(nil)

			Expect(comp.Setup(twowire.StandardMode)).To(Succeed())
			Expect(comp.IsReady()).To(BeTrue())
		})
	})

	Context("submitting", func() {
		It("should transmit the message and request a full buffer", func() {
			submit(8, "PING")

			Expect(comp.State()).To(Equal(StatePending))
			Expect(comp.IsReady()).To(BeFalse())
			Expect(comp.IsBusy()).To(BeTrue())
			Expect(comp.HasReply()).To(BeFalse())
		})

		It("should accept an empty message", func() {
			submit(8, "")

			Expect(comp.State()).To(Equal(StatePending))
		})

		It("should reject a message longer than the buffer", func() {
			msg := bytes.Repeat([]byte{'x'}, MaxMessageSize+1)

			n, err := comp.SubmitRequest(8, msg)

			Expect(err).To(MatchError(ErrTooLong))
			Expect(n).To(Equal(0))
			Expect(comp.State()).To(Equal(StateIdle))
		})

		It("should accept a message of exactly the buffer size after a rejection", func() {
			_, err := comp.SubmitRequest(8, bytes.Repeat([]byte{'x'}, MaxMessageSize+1))
			Expect(err).To(MatchError(ErrTooLong))

			submit(8, string(bytes.Repeat([]byte{'y'}, MaxMessageSize)))

			Expect(comp.State()).To(Equal(StatePending))
		})

		It("should be busy while pending", func() {
			submit(8, "PING")

			n, err := comp.SubmitRequest(9, []byte("PING"))

			Expect(err).To(MatchError(ErrBusy))
			Expect(n).To(Equal(0))
			Expect(comp.State()).To(Equal(StatePending))
		})

		It("should report busy before checking the length", func() {
			submit(8, "PING")

			_, err := comp.SubmitRequest(8, make([]byte, MaxMessageSize+1))

			Expect(err).To(MatchError(ErrBusy))
		})

		It("should be busy while a reply waits to be fetched", func() {
			submit(8, "PING")
			rx = []byte("PONG")
			comp.Poll()

			_, err := comp.SubmitRequest(8, []byte("PING"))

			Expect(err).To(MatchError(ErrBusy))
			Expect(comp.State()).To(Equal(StateCompleted))
		})

		It("should be busy while a timeout waits to be fetched", func() {
			submit(8, "PING")
			clock.AdvanceDuration(time.Second)
			comp.Poll()

			_, err := comp.SubmitRequest(8, []byte("PING"))

			Expect(err).To(MatchError(ErrBusy))
			Expect(comp.State()).To(Equal(StateExpired))
		})
	})

	Context("polling", func() {
		It("should do nothing when idle", func() {
			Expect(comp.Tick()).To(BeFalse())
			Expect(comp.State()).To(Equal(StateIdle))
		})

		It("should stay pending without bytes before the timeout", func() {
			submit(8, "PING")
			clock.Advance(49_999)

			Expect(comp.Tick()).To(BeFalse())
			Expect(comp.State()).To(Equal(StatePending))
		})

		It("should complete when a reply arrives", func() {
			submit(8, "PING")
			clock.Advance(1_500)
			comp.Poll()
			clock.Advance(500)
			rx = []byte("PONG")

			Expect(comp.Tick()).To(BeTrue())
			Expect(comp.State()).To(Equal(StateCompleted))
			Expect(comp.HasReply()).To(BeTrue())
			Expect(rx).To(BeEmpty())
		})

		It("should expire exactly at the timeout", func() {
			submit(12, "PING")
			clock.Advance(50_000)

			Expect(comp.Tick()).To(BeTrue())
			Expect(comp.State()).To(Equal(StateExpired))
			Expect(comp.HasTimedOut()).To(BeTrue())
			Expect(comp.HasReply()).To(BeTrue())
		})

		It("should prefer a reply over a timeout in the same poll", func() {
			submit(8, "PING")
			clock.Advance(80_000)
			rx = []byte("LATE")

			comp.Poll()

			Expect(comp.State()).To(Equal(StateCompleted))
		})

		It("should not change a completed transaction", func() {
			submit(8, "PING")
			rx = []byte("PONG")
			comp.Poll()

			rx = []byte("NOISE")
			clock.AdvanceDuration(time.Second)

			for i := 0; i < 3; i++ {
				Expect(comp.Tick()).To(BeFalse())
			}

			Expect(comp.State()).To(Equal(StateCompleted))
			Expect(rx).To(Equal([]byte("NOISE")))

			rsp, err := comp.FetchResponse()
			Expect(err).ToNot(HaveOccurred())
			Expect(rsp.Data).To(Equal([]byte("PONG")))
		})

		It("should not change an expired transaction", func() {
			submit(8, "PING")
			clock.Advance(50_000)
			comp.Poll()

			rx = []byte("LATE")

			Expect(comp.Tick()).To(BeFalse())
			Expect(comp.State()).To(Equal(StateExpired))
		})

		It("should stay pending when no byte could be read", func() {
			submit(8, "PING")
			rx = []byte("PONG")
			failReads = true

			Expect(comp.Tick()).To(BeFalse())
			Expect(comp.State()).To(Equal(StatePending))

			_, err := comp.FetchResponse()
			Expect(err).To(MatchError(ErrStillInFlight))
		})

		It("should time out when reads keep failing", func() {
			submit(8, "PING")
			rx = []byte("PONG")
			failReads = true
			clock.Advance(50_000)

			comp.Poll()

			rsp, err := comp.FetchResponse()
			Expect(err).To(MatchError(ErrTimedOut))
			Expect(rsp.TimedOut).To(BeTrue())
			Expect(rsp.Len()).To(Equal(0))
		})

		It("should measure across a counter wrap", func() {
			clock.Set(0xFFFF_FF00)
			submit(8, "PING")
			clock.Advance(0x200)
			rx = []byte("PONG")
			comp.Poll()

			rsp, err := comp.FetchResponse()

			Expect(err).ToNot(HaveOccurred())
			Expect(rsp.Elapsed).To(Equal(timing.Micros(0x200)))
		})

		It("should not expire across a counter wrap before the timeout", func() {
			clock.Set(0xFFFF_FFF0)
			submit(8, "PING")
			clock.Advance(40_000)

			comp.Poll()

			Expect(comp.State()).To(Equal(StatePending))
		})
	})

	Context("fetching", func() {
		It("should report nothing pending when idle", func() {
			rsp, err := comp.FetchResponse()

			Expect(err).To(MatchError(ErrNothingPending))
			Expect(rsp).To(Equal(Response{}))
			Expect(comp.State()).To(Equal(StateIdle))
		})

		It("should report a request in flight", func() {
			submit(8, "PING")

			_, err := comp.FetchResponse()

			Expect(err).To(MatchError(ErrStillInFlight))
			Expect(comp.State()).To(Equal(StatePending))
		})

		It("should return the reply, the address and the elapsed time", func() {
			submit(8, "PING")
			clock.Advance(2_000)
			rx = []byte("PONG")
			comp.Poll()

			rsp, err := comp.FetchResponse()

			Expect(err).ToNot(HaveOccurred())
			Expect(rsp.Data).To(Equal([]byte("PONG")))
			Expect(rsp.Len()).To(Equal(4))
			Expect(rsp.Address).To(Equal(twowire.Address(8)))
			Expect(rsp.Elapsed).To(Equal(timing.Micros(2_000)))
			Expect(rsp.TimedOut).To(BeFalse())
			Expect(rsp.Truncated()).To(BeFalse())
			Expect(rsp.ID).ToNot(BeEmpty())
			Expect(comp.State()).To(Equal(StateIdle))
		})

		It("should return an empty response carrying the timeout", func() {
			submit(12, "PING")
			clock.Advance(70_000)
			comp.Poll()

			rsp, err := comp.FetchResponse()

			Expect(err).To(MatchError(ErrTimedOut))
			Expect(rsp.Data).To(BeEmpty())
			Expect(rsp.Len()).To(Equal(0))
			Expect(rsp.Address).To(Equal(twowire.Address(12)))
			Expect(rsp.Elapsed).To(Equal(timing.Micros(50_000)))
			Expect(rsp.TimedOut).To(BeTrue())
			Expect(comp.IsReady()).To(BeTrue())
		})

		It("should only hand out a response once", func() {
			submit(8, "PING")
			rx = []byte("PONG")
			comp.Poll()

			_, err := comp.FetchResponse()
			Expect(err).ToNot(HaveOccurred())

			_, err = comp.FetchResponse()
			Expect(err).To(MatchError(ErrNothingPending))
		})

		It("should truncate replies longer than the buffer", func() {
			submit(8, "DUMP")
			long := make([]byte, 200)
			for i := range long {
				long[i] = byte(i)
			}
			rx = long

			comp.Poll()
			rsp, err := comp.FetchResponse()

			Expect(err).ToNot(HaveOccurred())
			Expect(rsp.Len()).To(Equal(MaxMessageSize))
			Expect(rsp.Data).To(Equal(long[:MaxMessageSize]))
			Expect(rsp.Dropped).To(Equal(200 - MaxMessageSize))
			Expect(rsp.Truncated()).To(BeTrue())
			Expect(rx).To(BeEmpty())
		})

		It("should hand out a copy that outlives the next transaction", func() {
			submit(8, "PING")
			rx = []byte("PONG")
			comp.Poll()
			first, _ := comp.FetchResponse()

			submit(8, "PING")
			rx = []byte("XXXX")
			comp.Poll()
			second, _ := comp.FetchResponse()

			Expect(first.Data).To(Equal([]byte("PONG")))
			Expect(second.Data).To(Equal([]byte("XXXX")))
			Expect(first.ID).ToNot(Equal(second.ID))
		})
	})

	Context("timeout configuration", func() {
		It("should change the timeout while idle", func() {
			Expect(comp.SetTimeout(10 * time.Millisecond)).To(Succeed())
			submit(8, "PING")
			clock.Advance(10_000)

			comp.Poll()

			Expect(comp.State()).To(Equal(StateExpired))
		})

		It("should refuse to change the timeout while busy", func() {
			submit(8, "PING")

			Expect(comp.SetTimeout(time.Second)).To(MatchError(ErrBusy))
			Expect(comp.Timeout()).To(Equal(50 * time.Millisecond))
		})

		It("should refuse unusable timeouts", func() {
			Expect(comp.SetTimeout(0)).To(MatchError(ErrInvalidTimeout))
			Expect(comp.SetTimeout(-time.Second)).To(MatchError(ErrInvalidTimeout))
			Expect(comp.SetTimeout(24 * time.Hour)).To(MatchError(ErrInvalidTimeout))
		})
	})

	Context("hooks", func() {
		var positions []string

		BeforeEach(func() {
			positions = nil
			comp.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				Expect(ctx.Domain).To(BeIdenticalTo(comp))
				positions = append(positions, ctx.Pos.Name)
			}))
		})

		It("should publish a completed cycle", func() {
			submit(8, "PING")
			rx = []byte("PONG")
			comp.Poll()
			_, _ = comp.FetchResponse()

			Expect(positions).To(Equal([]string{
				HookPosRequestSent.Name,
				HookPosReplyReceived.Name,
				HookPosResponseFetched.Name,
			}))
		})

		It("should publish an expired cycle", func() {
			submit(8, "PING")
			clock.Advance(50_000)
			comp.Poll()
			_, _ = comp.FetchResponse()

			Expect(positions).To(Equal([]string{
				HookPosRequestSent.Name,
				HookPosRequestExpired.Name,
				HookPosResponseFetched.Name,
			}))
		})

		It("should publish bus faults without failing the submission", func() {
			var fault error
			comp.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == HookPosBusFault {
					fault = ctx.Item.(error)
				}
			}))

			gomock.InOrder(
				driver.EXPECT().BeginTransmission(twowire.Address(0x30)),
				driver.EXPECT().Write([]byte("PING")).Return(4, nil),
				driver.EXPECT().EndTransmission().Return(twowire.ErrNoSuchDevice),
				driver.EXPECT().RequestFrom(twowire.Address(0x30), MaxMessageSize).Return(nil),
			)

			n, err := comp.SubmitRequest(0x30, []byte("PING"))

			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(4))
			Expect(fault).To(MatchError(twowire.ErrNoSuchDevice))
			Expect(positions).To(Equal([]string{
				HookPosBusFault.Name,
				HookPosRequestSent.Name,
			}))
		})

		It("should publish a failed read as a bus fault", func() {
			var fault error
			comp.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
				if ctx.Pos == HookPosBusFault {
					fault = ctx.Item.(error)
				}
			}))

			submit(8, "PING")
			rx = []byte("PONG")
			failReads = true
			comp.Poll()

			Expect(fault).To(MatchError(twowire.ErrNoData))
			Expect(positions).To(Equal([]string{
				HookPosRequestSent.Name,
				HookPosBusFault.Name,
			}))
		})
	})
})

var _ = Describe("Coordinator clock sampling", func() {
	var (
		mockCtrl *gomock.Controller
		driver   *MockDriver
		clock    *MockClock
		comp     *Comp
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		driver = NewMockDriver(mockCtrl)
		clock = NewMockClock(mockCtrl)

		comp = MakeBuilder().
			WithDriver(driver).
			WithClock(clock).
			WithTimeout(50 * time.Millisecond).
			Build("Coordinator")

		driver.EXPECT().BeginTransmission(gomock.Any())
		driver.EXPECT().Write(gomock.Any()).Return(4, nil)
		driver.EXPECT().EndTransmission().Return(nil)
		driver.EXPECT().RequestFrom(gomock.Any(), MaxMessageSize).Return(nil)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should stamp the request before transmitting it", func() {
		clock.EXPECT().NowMicros().Return(timing.Micros(100))

		_, err := comp.SubmitRequest(8, []byte("PING"))
		Expect(err).ToNot(HaveOccurred())

		driver.EXPECT().Available().Return(0)
		clock.EXPECT().NowMicros().Return(timing.Micros(50_099))
		comp.Poll()
		Expect(comp.State()).To(Equal(StatePending))

		driver.EXPECT().Available().Return(0)
		clock.EXPECT().NowMicros().Return(timing.Micros(50_100))
		comp.Poll()
		Expect(comp.State()).To(Equal(StateExpired))
	})

	It("should measure completion after draining", func() {
		clock.EXPECT().NowMicros().Return(timing.Micros(0))
		_, _ = comp.SubmitRequest(8, []byte("PING"))

		gomock.InOrder(
			driver.EXPECT().Available().Return(1),
			driver.EXPECT().Available().Return(1),
			driver.EXPECT().ReadByte().Return(byte('!'), nil),
			driver.EXPECT().Available().Return(0),
			clock.EXPECT().NowMicros().Return(timing.Micros(1234)),
		)

		comp.Poll()
		rsp, err := comp.FetchResponse()

		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.Data).To(Equal([]byte("!")))
		Expect(rsp.Elapsed).To(Equal(timing.Micros(1234)))
	})

	It("should keep waiting when a burst cannot be read", func() {
		clock.EXPECT().NowMicros().Return(timing.Micros(0))
		_, _ = comp.SubmitRequest(8, []byte("PING"))

		gomock.InOrder(
			driver.EXPECT().Available().Return(1),
			driver.EXPECT().Available().Return(1),
			driver.EXPECT().ReadByte().Return(byte(0), twowire.ErrNoData),
			clock.EXPECT().NowMicros().Return(timing.Micros(10)),
		)

		Expect(comp.Tick()).To(BeFalse())
		Expect(comp.IsBusy()).To(BeTrue())
	})
})

var _ = Describe("Code", func() {
	It("should map errors onto result codes", func() {
		Expect(Code(nil)).To(Equal(0))
		Expect(Code(ErrBusy)).To(Equal(CodeBusy))
		Expect(Code(ErrStillInFlight)).To(Equal(CodeBusy))
		Expect(Code(ErrTooLong)).To(Equal(CodeTooLong))
		Expect(Code(ErrTimedOut)).To(Equal(CodeTimedOut))
		Expect(Code(ErrNothingPending)).To(Equal(CodeNothingPending))
	})
})

var _ = Describe("Builder", func() {
	It("should require a driver", func() {
		Expect(func() { MakeBuilder().Build("Coordinator") }).To(Panic())
	})

	It("should use a wall clock by default", func() {
		mockCtrl := gomock.NewController(GinkgoT())
		comp := MakeBuilder().WithDriver(NewMockDriver(mockCtrl)).Build("C")

		Expect(comp.clock).To(BeAssignableToTypeOf(&timing.WallClock{}))
		Expect(comp.Timeout()).To(Equal(DefaultTimeout))
	})
})
