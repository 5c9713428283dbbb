package simulation

import (
	"context"
	"database/sql"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/i2cm/coordinator"
	"github.com/sarchlab/i2cm/scenario"
	"github.com/sarchlab/i2cm/timing"
	"github.com/sarchlab/i2cm/tracing"
	"github.com/sarchlab/i2cm/twowire"
)

type outcome struct {
	msg scenario.Message
	rsp coordinator.Response
	err error
}

var _ = Describe("Simulation", func() {
	var (
		simulation *Simulation
		outcomes   []outcome
	)

	report := func(msg scenario.Message, rsp coordinator.Response, err error) {
		outcomes = append(outcomes, outcome{msg, rsp, err})
	}

	BeforeEach(func() {
		outcomes = nil
	})

	AfterEach(func() {
		if simulation != nil {
			simulation.Terminate()
			simulation = nil
		}
	})

	It("should run the default scenario", func() {
		var err error
		simulation, err = MakeBuilder().Build()
		Expect(err).ToNot(HaveOccurred())

		Expect(simulation.Run(context.Background(), report)).To(Succeed())

		Expect(outcomes).To(HaveLen(3))

		Expect(outcomes[0].err).ToNot(HaveOccurred())
		Expect(outcomes[0].rsp.Data).To(Equal([]byte("PONG")))
		Expect(outcomes[0].rsp.Elapsed).To(Equal(timing.Micros(2000)))

		Expect(outcomes[1].err).To(MatchError(coordinator.ErrTimedOut))
		Expect(outcomes[1].rsp.Address).To(Equal(twowire.Address(12)))
		Expect(outcomes[1].rsp.Elapsed).To(Equal(timing.Micros(100_000)))

		Expect(outcomes[2].err).ToNot(HaveOccurred())
		Expect(outcomes[2].rsp.Len()).To(Equal(coordinator.MaxMessageSize))
		Expect(outcomes[2].rsp.Dropped).To(Equal(68))

		stats := simulation.Stats()
		Expect(stats.Completed).To(Equal(uint64(2)))
		Expect(stats.Expired).To(Equal(uint64(1)))
		Expect(stats.Truncated).To(Equal(uint64(1)))
		Expect(simulation.Coordinator().IsReady()).To(BeTrue())
		Expect(simulation.Bus().Divisor()).To(Equal(uint8(72)))
	})

	It("should reject a broken scenario", func() {
		sc := scenario.Default()
		sc.BusFreq = "4MHz"

		_, err := MakeBuilder().WithScenario(sc).Build()

		Expect(err).To(MatchError(twowire.ErrInvalidFrequency))
	})

	It("should stop when cancelled", func() {
		var err error
		simulation, err = MakeBuilder().Build()
		Expect(err).ToNot(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(simulation.Run(ctx, report)).To(MatchError(context.Canceled))
	})

	It("should record every transaction", func() {
		path := filepath.Join(GinkgoT().TempDir(), "recording")

		var err error
		simulation, err = MakeBuilder().WithRecording(path).Build()
		Expect(err).ToNot(HaveOccurred())
		Expect(simulation.GetDataRecorder().ListTables()).
			To(ConsistOf(tracing.TransactionTableName))

		Expect(simulation.Run(context.Background(), nil)).To(Succeed())
		simulation.Terminate()
		simulation = nil

		db, err := sql.Open("sqlite3", path+".sqlite3")
		Expect(err).ToNot(HaveOccurred())
		defer db.Close()

		var timeouts int
		err = db.QueryRow(
			"SELECT COUNT(*) FROM i2c_transactions WHERE Outcome = ?",
			tracing.OutcomeTimeout,
		).Scan(&timeouts)
		Expect(err).ToNot(HaveOccurred())
		Expect(timeouts).To(Equal(1))

		var total int
		err = db.QueryRow("SELECT COUNT(*) FROM i2c_transactions").Scan(&total)
		Expect(err).ToNot(HaveOccurred())
		Expect(total).To(Equal(3))
	})

	It("should not allow a monitor port without monitoring", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithMonitorPort(8080).Build()
		}).To(Panic())
	})

	It("should serve monitor requests while holding", func() {
		var err error
		simulation, err = MakeBuilder().WithMonitoring().Build()
		Expect(err).ToNot(HaveOccurred())
		Expect(simulation.GetMonitor().URL()).ToNot(BeEmpty())

		Expect(simulation.Run(context.Background(), nil)).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		held := make(chan error, 1)
		go func() {
			held <- simulation.Hold(ctx)
		}()

		rsp, err := simulation.Runner().Do(ctx, 8, []byte("PING"))
		Expect(err).ToNot(HaveOccurred())
		Expect(rsp.Data).To(Equal([]byte("PONG")))

		cancel()
		Eventually(held).Should(Receive(MatchError(context.Canceled)))
	})
})
