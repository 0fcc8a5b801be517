package workflow

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"furnace-optimizer/backend/internal/params"
	"furnace-optimizer/backend/internal/services"
	"furnace-optimizer/backend/pkg/models"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeClient struct {
	calls    atomic.Int32
	active   atomic.Int32
	maxSeen  atomic.Int32
	gate     chan struct{}
	result   *models.PredictionResult
	err      error
	lastCred models.Credential
	mu       sync.Mutex
}

func (f *fakeClient) Predict(ctx context.Context, p models.ProcessParameters, cred models.Credential) (*models.PredictionResult, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.lastCred = cred
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result.Clone(), nil
}

type fakeHolder struct {
	token       models.Credential
	invalidated atomic.Int32
}

func (h *fakeHolder) CurrentToken() (models.Credential, bool) {
	if h.invalidated.Load() > 0 || h.token == "" {
		return "", false
	}
	return h.token, true
}

func (h *fakeHolder) Invalidate() {
	h.invalidated.Add(1)
}

type fakeRecorder struct {
	mu    sync.Mutex
	saved []*models.Submission
	err   error
}

func (r *fakeRecorder) Save(_ context.Context, s *models.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, s)
	return r.err
}

func (r *fakeRecorder) all() []*models.Submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.Submission(nil), r.saved...)
}

// echoClient predicts exactly the parameters it was sent.
type echoClient struct{}

func (echoClient) Predict(_ context.Context, p models.ProcessParameters, _ models.Credential) (*models.PredictionResult, error) {
	return &models.PredictionResult{Prediction: p.Values()}, nil
}

func validValues(temp string) map[string]string {
	return map[string]string{
		"blast_furnace_temp": temp,
		"hot_blast_pressure": "3.5",
		"oxygen_enrichment":  "2.1",
		"humidity":           "1.0",
		"coke_rate":          "400",
		"pulverized_coal":    "120",
		"slag_rate":          "300",
		"sinter_rate":        "800",
	}
}

func fillForm(f *params.Form) {
	Expect(f.SetFields(map[string]string{
		"blast_furnace_temp": "1200",
		"hot_blast_pressure": "3.5",
		"oxygen_enrichment":  "2.1",
		"humidity":           "1.0",
		"coke_rate":          "400",
		"pulverized_coal":    "120",
		"slag_rate":          "300",
		"sinter_rate":        "800",
	})).To(Succeed())
}

var sampleResult = &models.PredictionResult{
	Prediction: []float64{1195.2, 3.4, 2.0, 1.1, 398.0, 119.5, 299.0, 805.0},
	Message:    "ok",
	Variables:  [][]float64{{1, 2}, {3, 4}},
	Solutions:  [][]float64{{0.1, 0.9}, {0.4, 0.6}},
}

var _ = Describe("Controller", func() {
	var (
		form     *params.Form
		client   *fakeClient
		holder   *fakeHolder
		recorder *fakeRecorder
		ctrl     *Controller
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		form = params.NewForm()
		client = &fakeClient{result: sampleResult}
		holder = &fakeHolder{token: "jwt"}
		recorder = &fakeRecorder{}
		ctrl = NewController(form, client, holder, WithRecorder(recorder), WithSessionID("session-1"))
	})

	It("starts idle", func() {
		Expect(ctrl.State().Phase).To(Equal(PhaseIdle))
		Expect(ctrl.Form()).To(BeIdenticalTo(form))
	})

	Context("when the form is valid", func() {
		BeforeEach(func() { fillForm(form) })

		It("succeeds with an interpreted result", func() {
			state, err := ctrl.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(state.Phase).To(Equal(PhaseSucceeded))
			Expect(state.Result).NotTo(BeNil())
			Expect(state.Result.Pairs).To(HaveLen(models.FieldCount))
			for i, pair := range state.Result.Pairs {
				Expect(pair.Field).To(Equal(models.Fields[i]))
				Expect(pair.Value).To(Equal(sampleResult.Prediction[i]))
			}
			Expect(state.Result.SolutionCount).To(Equal(2))
			Expect(state.Error).To(BeEmpty())
			Expect(ctrl.State()).To(Equal(state))

			client.mu.Lock()
			Expect(client.lastCred).To(Equal(models.Credential("jwt")))
			client.mu.Unlock()
		})

		It("records the completed cycle", func() {
			state, err := ctrl.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())

			saved := recorder.all()
			Expect(saved).To(HaveLen(1))
			Expect(saved[0].ID).To(Equal(state.SubmissionID))
			Expect(saved[0].SessionID).To(Equal("session-1"))
			Expect(saved[0].Outcome).To(Equal(models.OutcomeSucceeded))
			Expect(saved[0].SolutionCount).To(Equal(2))
			Expect(saved[0].Parameters[0]).To(Equal(1200.0))
		})

		It("keeps the state when the recorder fails", func() {
			recorder.err = errors.New("disk full")
			state, err := ctrl.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Phase).To(Equal(PhaseSucceeded))
		})

		It("invalidates the session exactly once on a 401", func() {
			client.err = &services.AuthenticationError{StatusCode: 401}

			state, err := ctrl.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Phase).To(Equal(PhaseFailed))
			Expect(state.ReauthRequired).To(BeTrue())
			Expect(state.ErrorKind).To(Equal("authentication"))
			Expect(holder.invalidated.Load()).To(Equal(int32(1)))
		})

		It("fails fast without a credential", func() {
			holder.token = ""

			state, _ := ctrl.Submit(ctx)
			Expect(state.Phase).To(Equal(PhaseFailed))
			Expect(state.ReauthRequired).To(BeTrue())
			Expect(state.ErrorKind).To(Equal("unauthenticated"))
			Expect(client.calls.Load()).To(BeZero())
			Expect(holder.invalidated.Load()).To(Equal(int32(1)))
		})

		DescribeTable("maps other failures to a message and allows resubmission",
			func(failure error, kind, message string) {
				client.err = failure

				state, err := ctrl.Submit(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(state.Phase).To(Equal(PhaseFailed))
				Expect(state.ErrorKind).To(Equal(kind))
				Expect(state.Error).To(Equal(message))
				Expect(state.ReauthRequired).To(BeFalse())
				Expect(state.Result).To(BeNil())
				Expect(holder.invalidated.Load()).To(BeZero())

				client.err = nil
				state, err = ctrl.Submit(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(state.Phase).To(Equal(PhaseSucceeded))
				Expect(state.Error).To(BeEmpty())
			},
			Entry("rejected", &services.RequestRejectedError{StatusCode: 400, ServerMessage: "coke_rate out of range"},
				"rejected", "coke_rate out of range"),
			Entry("unavailable", &services.ServiceUnavailableError{StatusCode: 503},
				"unavailable", "optimization service is unavailable; please try again"),
			Entry("malformed", &services.MalformedResponseError{Reason: "missing field"},
				"malformed", "optimization service returned an invalid response"),
		)

		It("replaces a previous result wholesale", func() {
			first, _ := ctrl.Submit(ctx)

			client.result = &models.PredictionResult{Prediction: []float64{1}, Message: "second"}
			second, _ := ctrl.Submit(ctx)

			Expect(second.SubmissionID).NotTo(Equal(first.SubmissionID))
			Expect(second.Result.Message).To(Equal("second"))
			Expect(second.Result.Pairs[1].Available).To(BeFalse())
			Expect(second.Result.SolutionCount).To(BeZero())
		})

		It("rejects a second submit while one is in flight", func() {
			client.gate = make(chan struct{})

			Expect(ctrl.Start(ctx)).To(Succeed())
			Expect(ctrl.State().Phase).To(Equal(PhaseSubmitting))
			Expect(ctrl.State().Result).To(BeNil())

			Expect(ctrl.Start(ctx)).To(MatchError(ErrSubmissionInFlight))
			_, err := ctrl.Submit(ctx)
			Expect(err).To(MatchError(ErrSubmissionInFlight))

			Expect(form.SetField("humidity", "9")).To(MatchError(params.ErrFormFrozen))

			close(client.gate)
			Eventually(func() Phase { return ctrl.State().Phase }).Should(Equal(PhaseSucceeded))
			Expect(client.calls.Load()).To(Equal(int32(1)))
			Eventually(func() error { return form.SetField("humidity", "9") }).Should(Succeed())
		})

		It("never runs two client calls concurrently", func() {
			var wg sync.WaitGroup
			var rejected atomic.Int32
			for i := 0; i < 16; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					if _, err := ctrl.Submit(ctx); errors.Is(err, ErrSubmissionInFlight) {
						rejected.Add(1)
					}
				}()
			}
			wg.Wait()

			Expect(client.maxSeen.Load()).To(Equal(int32(1)))
			Expect(client.calls.Load() + rejected.Load()).To(Equal(int32(16)))
		})

		It("leaves the form alone when SubmitWith is rejected", func() {
			client.gate = make(chan struct{})
			Expect(ctrl.StartWith(ctx, validValues("1250"))).To(Succeed())

			_, err := ctrl.SubmitWith(ctx, validValues("9999"))
			Expect(err).To(MatchError(ErrSubmissionInFlight))
			Expect(form.Entries()[0].Raw).To(Equal("1250"))

			close(client.gate)
			Eventually(func() Phase { return ctrl.State().Phase }).Should(Equal(PhaseSucceeded))
		})

		It("submits each caller's own values under contention", func() {
			ctrl = NewController(form, echoClient{}, holder)

			var wg sync.WaitGroup
			var succeeded, mismatched atomic.Int32
			for g := 0; g < 16; g++ {
				wg.Add(1)
				go func(g int) {
					defer GinkgoRecover()
					defer wg.Done()
					for round := 0; round < 200; round++ {
						temp := float64(g*1000 + round)
						state, err := ctrl.SubmitWith(ctx, validValues(strconv.FormatFloat(temp, 'f', -1, 64)))
						if err != nil {
							Expect(err).To(MatchError(ErrSubmissionInFlight))
							continue
						}
						succeeded.Add(1)
						if state.Prediction.Prediction[0] != temp || state.Result.Pairs[0].Input != temp {
							mismatched.Add(1)
						}
					}
				}(g)
			}
			wg.Wait()

			Expect(succeeded.Load()).To(BeNumerically(">", 0))
			Expect(mismatched.Load()).To(BeZero())
		})

		It("rejects unknown fields in SubmitWith without entering Submitting", func() {
			_, err := ctrl.SubmitWith(ctx, map[string]string{"tuyere_count": "12"})
			var ferr *params.InvalidFieldError
			Expect(errors.As(err, &ferr)).To(BeTrue())
			Expect(ctrl.State().Phase).To(Equal(PhaseIdle))

			Expect(ctrl.Start(ctx)).To(Succeed())
			Eventually(func() Phase { return ctrl.State().Phase }).Should(Equal(PhaseSucceeded))
		})

		It("publishes state changes to subscribers", func() {
			client.gate = make(chan struct{})
			updates, cancel := ctrl.Subscribe()
			defer cancel()

			Expect(ctrl.Start(ctx)).To(Succeed())
			Eventually(updates).Should(Receive(HaveField("Phase", PhaseSubmitting)))

			close(client.gate)
			Eventually(updates, time.Second).Should(Receive(HaveField("Phase", PhaseSucceeded)))
		})
	})

	Context("when the form is invalid", func() {
		It("fails validation without a network call", func() {
			fillForm(form)
			Expect(form.SetField("blast_furnace_temp", "")).To(Succeed())

			state, err := ctrl.Submit(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Phase).To(Equal(PhaseFailed))
			Expect(state.ErrorKind).To(Equal("validation"))
			Expect(state.Error).To(Equal("blast_furnace_temp: value is empty"))

			var verr *params.ValidationError
			Expect(errors.As(state.Err, &verr)).To(BeTrue())
			Expect(verr.Field).To(Equal(models.FieldBlastFurnaceTemp))
			Expect(verr.Reason).To(Equal(params.ReasonEmpty))

			Expect(client.calls.Load()).To(BeZero())
			Expect(holder.invalidated.Load()).To(BeZero())
		})

		It("fails on non-numeric input", func() {
			fillForm(form)
			Expect(form.SetField("coke_rate", "four hundred")).To(Succeed())

			state, _ := ctrl.Submit(ctx)
			Expect(state.Error).To(Equal("coke_rate: value is not-a-number"))
			Expect(client.calls.Load()).To(BeZero())
		})
	})

	It("stops delivering after unsubscribe", func() {
		updates, cancel := ctrl.Subscribe()
		cancel()
		cancel()
		Eventually(updates).Should(BeClosed())
	})
})
