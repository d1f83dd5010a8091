package posti_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/geekuality/posti-delivery-dates/internal/posti"
)

// newScheduleServer serves a fixed body with keep-alives disabled so closing
// one server cannot affect specs sharing the HTTP transport.
func newScheduleServer(handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

var _ = Describe("Fetcher", func() {
	var (
		server  *httptest.Server
		fetcher posti.Fetcher
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
			server = nil
		}
	})

	newFetcherFor := func(s *httptest.Server, opts ...posti.Option) posti.Fetcher {
		opts = append([]posti.Option{
			posti.WithURLTemplate(s.URL + "/?q={postalCode}"),
		}, opts...)
		return posti.NewFetcher(opts...)
	}

	Describe("successful fetches", func() {
		It("should return the first entry's delivery dates", func() {
			server = newScheduleServer(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`[{"postalCode":"00100","deliveryDates":["2026-03-11","2026-03-13"]}]`))
			})
			fetcher = newFetcherFor(server)

			dates, err := fetcher.Fetch(ctx, "00100")
			Expect(err).NotTo(HaveOccurred())
			Expect(dates).To(Equal([]string{"2026-03-11", "2026-03-13"}))
		})

		It("should substitute the escaped postal code into the URL", func() {
			var gotQuery string
			server = newScheduleServer(func(w http.ResponseWriter, r *http.Request) {
				gotQuery = r.URL.RawQuery
				_, _ = w.Write([]byte(`[{"deliveryDates":["2026-03-11"]}]`))
			})
			fetcher = newFetcherFor(server)

			_, err := fetcher.Fetch(ctx, "00100")
			Expect(err).NotTo(HaveOccurred())
			Expect(gotQuery).To(Equal("q=00100"))
		})

		It("should ignore entries beyond the first", func() {
			server = newScheduleServer(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`[
					{"postalCode":"00100","deliveryDates":["2026-03-11"]},
					{"postalCode":"33100","deliveryDates":["2026-03-12"]}
				]`))
			})
			fetcher = newFetcherFor(server)

			dates, err := fetcher.Fetch(ctx, "00100")
			Expect(err).NotTo(HaveOccurred())
			Expect(dates).To(Equal([]string{"2026-03-11"}))
		})
	})

	Describe("status failures", func() {
		It("should classify a non-200 response", func() {
			server = newScheduleServer(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			})
			fetcher = newFetcherFor(server)

			_, err := fetcher.Fetch(ctx, "00100")
			var fetchErr *posti.FetchError
			Expect(errors.As(err, &fetchErr)).To(BeTrue())
			Expect(fetchErr.Kind).To(Equal(posti.KindBadStatus))
			Expect(fetchErr.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(fetchErr.IsRetryable()).To(BeTrue())
		})
	})

	Describe("body validation", func() {
		DescribeTable("empty or malformed bodies",
			func(body string) {
				server = newScheduleServer(func(w http.ResponseWriter, _ *http.Request) {
					_, _ = w.Write([]byte(body))
				})
				fetcher = newFetcherFor(server)

				_, err := fetcher.Fetch(ctx, "00100")
				var fetchErr *posti.FetchError
				Expect(errors.As(err, &fetchErr)).To(BeTrue())
				Expect(fetchErr.Kind).To(Equal(posti.KindEmptyOrMalformed))
			},
			Entry("not JSON at all", "<html>maintenance</html>"),
			Entry("JSON object instead of array", `{"postalCode":"00100"}`),
			Entry("empty array", `[]`),
			Entry("first entry without dates", `[{"postalCode":"00100","deliveryDates":[]}]`),
			Entry("first entry missing the dates field", `[{"postalCode":"00100"}]`),
		)
	})

	Describe("transport failures", func() {
		It("should classify a connection refusal as unreachable", func() {
			// Grab a port that nothing listens on.
			dead := httptest.NewServer(http.NotFoundHandler())
			deadURL := dead.URL
			dead.Close()

			fetcher = posti.NewFetcher(posti.WithURLTemplate(deadURL + "/?q={postalCode}"))

			_, err := fetcher.Fetch(ctx, "00100")
			var fetchErr *posti.FetchError
			Expect(errors.As(err, &fetchErr)).To(BeTrue())
			Expect(fetchErr.Kind).To(Equal(posti.KindUnreachable))
		})

		It("should classify a slow response as timeout", func() {
			server = newScheduleServer(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			})
			fetcher = newFetcherFor(server, posti.WithTimeout(50*time.Millisecond))

			_, err := fetcher.Fetch(ctx, "00100")
			var fetchErr *posti.FetchError
			Expect(errors.As(err, &fetchErr)).To(BeTrue())
			Expect(fetchErr.Kind).To(Equal(posti.KindTimeout))
		})

		It("should honor context cancellation", func() {
			server = newScheduleServer(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			})
			fetcher = newFetcherFor(server)

			cancelCtx, cancel := context.WithCancel(ctx)
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()

			_, err := fetcher.Fetch(cancelCtx, "00100")
			Expect(err).To(HaveOccurred())
		})
	})
})
