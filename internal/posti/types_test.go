package posti_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/geekuality/posti-delivery-dates/internal/posti"
)

var _ = Describe("FetchError", func() {
	It("should include the status code when present", func() {
		err := &posti.FetchError{
			Kind:       posti.KindBadStatus,
			StatusCode: 502,
			Message:    "502 Bad Gateway",
		}
		Expect(err.Error()).To(ContainSubstring("HTTP 502"))
		Expect(err.Error()).To(ContainSubstring("bad-status"))
	})

	It("should omit the status code when zero", func() {
		err := &posti.FetchError{
			Kind:    posti.KindTimeout,
			Message: "request timed out",
		}
		Expect(err.Error()).NotTo(ContainSubstring("HTTP"))
		Expect(err.Error()).To(ContainSubstring("timeout"))
	})

	It("should unwrap to the underlying error", func() {
		cause := fmt.Errorf("connection reset")
		err := &posti.FetchError{Kind: posti.KindUnreachable, Err: cause}
		Expect(errors.Unwrap(err)).To(Equal(cause))
	})
})
