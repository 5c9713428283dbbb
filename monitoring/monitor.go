// Package monitoring serves the state of a running coordinator over HTTP and
// accepts requests to put on the bus.
package monitoring

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/monitoring/web"
	"github.com/sarchlab/i2cm/runner"
	"github.com/sarchlab/i2cm/tracing"
	"github.com/sarchlab/i2cm/twowire"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// DefaultRateLimit is the number of bus requests a client may submit per
// second.
const DefaultRateLimit = 10

const maxMessageBody = 1024

// Source is the loop the monitor observes and submits requests through.
type Source interface {
	Snapshot() runner.Snapshot
	Do(ctx context.Context, addr twowire.Address, msg []byte) (
		coordinator.Response, error)
}

// StatsSource provides latency statistics.
type StatsSource interface {
	Stats() tracing.Stats
}

// Monitor turns a running coordinator into a web server.
type Monitor struct {
	source          Source
	stats           StatsSource
	portNumber      int
	rateLimit       uint64
	requestTimeout  time.Duration
	profileDuration time.Duration

	once         sync.Once
	router       *mux.Router
	limiterStore limiter.Store
	server       *http.Server
	port         int
}

// NewMonitor creates a new Monitor
func NewMonitor(source Source) *Monitor {
	return &Monitor{
		source:          source,
		rateLimit:       DefaultRateLimit,
		requestTimeout:  5 * time.Second,
		profileDuration: time.Second,
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithStats sets where latency statistics come from.
func (m *Monitor) WithStats(stats StatsSource) *Monitor {
	m.stats = stats
	return m
}

// WithRateLimit sets how many bus requests each client may submit per
// second. Zero removes the limit.
func (m *Monitor) WithRateLimit(perSecond uint64) *Monitor {
	m.rateLimit = perSecond
	return m
}

// WithRequestTimeout bounds how long a bus request may wait for the loop.
func (m *Monitor) WithRequestTimeout(d time.Duration) *Monitor {
	m.requestTimeout = d
	return m
}

// WithProfileDuration sets how long the profile endpoint samples the CPU.
func (m *Monitor) WithProfileDuration(d time.Duration) *Monitor {
	m.profileDuration = d
	return m
}

// Handler returns the HTTP handler of the monitor.
func (m *Monitor) Handler() http.Handler {
	m.once.Do(m.setup)

	return m.router
}

func (m *Monitor) setup() {
	if m.rateLimit > 0 {
		store, err := memorystore.New(&memorystore.Config{
			Tokens:   m.rateLimit,
			Interval: time.Second,
		})
		if err != nil {
			panic(err)
		}

		m.limiterStore = store
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/status", m.status).Methods(http.MethodGet)
	r.HandleFunc("/api/component", m.component).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", m.listStats).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)
	r.HandleFunc("/api/request/{addr}", m.request).Methods(http.MethodPost)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	m.router = r
}

// StartServer starts serving in the background and returns the port.
func (m *Monitor) StartServer() (int, error) {
	addr := ":" + strconv.Itoa(m.portNumber)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, err
	}

	port := listener.Addr().(*net.TCPAddr).Port
	m.port = port
	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Monitoring i2cm with http://localhost:%d\n", port)

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Monitor stopped: %v\n", err)
		}
	}()

	return port, nil
}

// Stop shuts the server down.
func (m *Monitor) Stop() error {
	if m.limiterStore != nil {
		_ = m.limiterStore.Close(context.Background())
	}

	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

// URL returns the address of the monitor page. It is empty until the server
// is started.
func (m *Monitor) URL() string {
	if m.server == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d", m.port)
}

// OpenInBrowser opens the monitor page in the default browser.
func (m *Monitor) OpenInBrowser() error {
	if m.server == nil {
		return errors.New("monitor is not running")
	}

	return browser.OpenURL(m.URL())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (m *Monitor) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, m.source.Snapshot())
}

func (m *Monitor) component(w http.ResponseWriter, r *http.Request) {
	depth := 1
	if d := r.URL.Query().Get("depth"); d != "" {
		v, err := strconv.Atoi(d)
		if err != nil || v < 0 {
			http.Error(w, "invalid depth", http.StatusBadRequest)
			return
		}

		depth = v
	}

	snapshot := m.source.Snapshot()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&snapshot)
	serializer.SetMaxDepth(depth)

	buf := bytes.NewBuffer(nil)

	err := serializer.Serialize(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(buf.Bytes())
}

func (m *Monitor) listStats(w http.ResponseWriter, _ *http.Request) {
	if m.stats == nil {
		http.Error(w, "statistics are not collected", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, m.stats.Stats())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memoryInfo, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memoryInfo.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(m.profileDuration)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, prof)
}

type requestRsp struct {
	ID        string `json:"id,omitempty"`
	Address   string `json:"address"`
	Data      string `json:"data"`
	Length    int    `json:"length"`
	ElapsedUS uint32 `json:"elapsed_us"`
	TimedOut  bool   `json:"timed_out"`
	Dropped   int    `json:"dropped"`
	Error     string `json:"error,omitempty"`
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func (m *Monitor) request(w http.ResponseWriter, r *http.Request) {
	if m.limiterStore != nil {
		_, _, _, ok, err := m.limiterStore.Take(r.Context(), clientKey(r))
		if err != nil || !ok {
			http.Error(w, "too frequent requests", http.StatusTooManyRequests)
			return
		}
	}

	addr, err := twowire.ParseAddress(mux.Vars(r)["addr"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), m.requestTimeout)
	defer cancel()

	rsp, err := m.source.Do(ctx, addr, msg)

	body := requestRsp{
		ID:        rsp.ID,
		Address:   addr.String(),
		Data:      hex.EncodeToString(rsp.Data),
		Length:    rsp.Len(),
		ElapsedUS: uint32(rsp.Elapsed),
		TimedOut:  rsp.TimedOut,
		Dropped:   rsp.Dropped,
	}

	status := http.StatusOK

	switch {
	case err == nil:
	case errors.Is(err, coordinator.ErrTimedOut):
		status = http.StatusGatewayTimeout
	case errors.Is(err, coordinator.ErrTooLong):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	if err != nil {
		body.Error = err.Error()
	}

	writeJSON(w, status, body)
}
