package translog_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mirrorblock/replicad/translog"
)

// Grounded on the teacher's ais_test/notifications_test.go Describe/Context
// shape, here narrating the epoch lifecycle spec §4.C and §8 walk through
// in BDD style, as a complement to the table-style tests in translog_test.go.
var _ = Describe("transfer log epoch lifecycle", func() {
	var l *translog.Log[string]

	BeforeEach(func() {
		l = translog.New[string](32)
	})

	Context("when an epoch spans several writes between two barriers", func() {
		BeforeEach(func() {
			Expect(l.Add("w1")).To(Succeed())
			Expect(l.Add("w2")).To(Succeed())
			Expect(l.Add("w3")).To(Succeed())
		})

		It("releases exactly that epoch's writes on the matching BarrierAck", func() {
			barrierNr, err := l.AddBarrier()
			Expect(err).NotTo(HaveOccurred())
			Expect(barrierNr).To(Equal(uint64(1)))

			epoch, err := l.Release(barrierNr, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(epoch).To(Equal([]string{"w1", "w2", "w3"}))
			Expect(l.NrDone()).To(Equal(barrierNr))
		})

		It("never re-admits a write into a later epoch's release", func() {
			barrierNr, _ := l.AddBarrier()
			Expect(l.Add("w4")).To(Succeed())
			secondBarrier, err := l.AddBarrier()
			Expect(err).NotTo(HaveOccurred())

			firstEpoch, err := l.Release(barrierNr, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(firstEpoch).To(ConsistOf("w1", "w2", "w3"))

			secondEpoch, err := l.Release(secondBarrier, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(secondEpoch).To(Equal([]string{"w4"}))
		})
	})

	Context("when the peer reports a set_size that doesn't match what's queued", func() {
		It("still advances nr_done but surfaces a protocol error (scenario S5)", func() {
			Expect(l.Add("a")).To(Succeed())
			Expect(l.Add("b")).To(Succeed())
			Expect(l.Add("c")).To(Succeed())
			Expect(l.Add("d")).To(Succeed())
			barrierNr, _ := l.AddBarrier()

			_, err := l.Release(barrierNr, 3)
			Expect(err).To(HaveOccurred())
			Expect(l.NrDone()).To(Equal(barrierNr))
			Expect(l.Len()).To(Equal(0))
		})
	})

	Context("when local I/O completion races a barrier send (dependence)", func() {
		It("finds an in-epoch write and marks its slot consumed, invariant 7", func() {
			Expect(l.Add("pending-local")).To(Succeed())
			Expect(l.Dependence("pending-local")).To(BeTrue())
			Expect(l.Dependence("pending-local")).To(BeFalse(), "slot must already be EMPTY")
		})

		It("does not see across a barrier boundary into a prior epoch", func() {
			Expect(l.Add("old")).To(Succeed())
			l.AddBarrier()
			Expect(l.Add("new")).To(Succeed())

			Expect(l.Dependence("old")).To(BeFalse())
			Expect(l.Dependence("new")).To(BeTrue())
		})
	})

	Context("on disconnect (scenario S2's tl_clear)", func() {
		It("returns every still-pending write and leaves the ring reusable", func() {
			Expect(l.Add("p1")).To(Succeed())
			Expect(l.Add("p2")).To(Succeed())
			l.AddBarrier()
			Expect(l.Add("p3")).To(Succeed())

			pending := l.Clear()
			Expect(pending).To(ConsistOf("p1", "p2", "p3"))
			Expect(l.Len()).To(Equal(0))
			Expect(l.Add("fresh")).To(Succeed())
		})
	})
})
