package cmd

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gsPatrick/nutri-lp/internal"
)

var _ = Describe("reconcile worker", func() {
	DescribeTable("requireSharedStore",
		func(driver string, ok bool) {
			err := requireSharedStore(driver)
			if ok {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(HaveOccurred())
			}
		},
		Entry("postgres is shared", internal.StoragePostgres, true),
		Entry("redis is shared", internal.StorageRedis, true),
		Entry("memory lives in the server process", internal.StorageMemory, false),
		Entry("unknown driver", "mongo", false),
	)

	It("prefers the flag over the config value", func() {
		Expect(getIntFlag(8, 4)).To(Equal(8))
		Expect(getIntFlag(0, 4)).To(Equal(4))
	})
})
