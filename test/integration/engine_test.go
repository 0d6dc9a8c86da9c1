//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/daemon"
	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/infra"
	"github.com/eliteGoblin/focusd/focusgate/internal/transport/nativemsg"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

var start = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// opened is one process's view of a data directory.
type opened struct {
	store    domain.StateStore
	registry domain.DaemonRegistry
	engine   *usecase.Engine
}

var _ = Describe("Policy engine", func() {
	for _, kind := range []string{infra.StoreEncrypted, infra.StoreFile} {
		kind := kind

		Context("with the "+kind+" store", func() {
			var (
				dataDir string
				clock   *clockwork.FakeClock
				ctx     context.Context
				toClose []domain.StateStore
			)

			open := func() *opened {
				store, registry, err := infra.OpenStore(kind, dataDir, infra.NewProcessManager())
				Expect(err).NotTo(HaveOccurred())
				toClose = append(toClose, store)
				engine := usecase.NewEngine(store, zap.NewNop(), usecase.EngineOptions{
					Clock: clock,
				})
				// As every entry point does before serving.
				_, err = engine.CatchUp(ctx)
				Expect(err).NotTo(HaveOccurred())
				return &opened{
					store:    store,
					registry: registry,
					engine:   engine,
				}
			}

			BeforeEach(func() {
				var err error
				dataDir, err = os.MkdirTemp("", "focusgate-integration-*")
				Expect(err).NotTo(HaveOccurred())
				clock = clockwork.NewFakeClockAt(start)
				ctx = context.Background()
				toClose = nil
			})

			AfterEach(func() {
				for _, s := range toClose {
					Expect(s.Close()).To(Succeed())
				}
				os.RemoveAll(dataDir)
			})

			Describe("persistence", func() {
				It("should keep the session and patterns across restarts", func() {
					first := open()
					_, err := first.engine.AddPattern(ctx, "github.com/**", false)
					Expect(err).NotTo(HaveOccurred())
					Expect(first.engine.SetGoal(ctx, "Write the integration suite")).To(Succeed())
					Expect(first.store.Close()).To(Succeed())
					toClose = nil

					second := open()
					decision, err := second.engine.Evaluate(ctx, "https://github.com/golang/go")
					Expect(err).NotTo(HaveOccurred())
					Expect(decision.Allowed).To(BeTrue())
					Expect(decision.Goal).To(Equal("Write the integration suite"))

					patterns, err := second.engine.Patterns(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(patterns).To(HaveLen(1))
					Expect(patterns[0].CreatedAt.Equal(start)).To(BeTrue())
				})
			})

			Describe("shared data directory", func() {
				It("should let one process see another's writes", func() {
					cli := open()
					host := open()

					Expect(cli.engine.SetGoal(ctx, "Review pull requests")).To(Succeed())

					decision, err := host.engine.Evaluate(ctx, "https://github.com/org/repo/pull/1")
					Expect(err).NotTo(HaveOccurred())
					Expect(decision.Allowed).To(BeFalse())
					Expect(decision.Reason).To(Equal(usecase.ReasonNotAllowed))

					_, err = cli.engine.AddPattern(ctx, "github.com/*/*/pull/**", false)
					Expect(err).NotTo(HaveOccurred())

					decision, err = host.engine.Evaluate(ctx, "https://github.com/org/repo/pull/1")
					Expect(err).NotTo(HaveOccurred())
					Expect(decision.Allowed).To(BeTrue())
				})

				It("should accept a duplicate pattern only once across processes", func() {
					engines := []*usecase.Engine{open().engine, open().engine}

					var (
						wg        sync.WaitGroup
						mu        sync.Mutex
						successes int
					)
					for i := 0; i < 8; i++ {
						wg.Add(1)
						go func(e *usecase.Engine) {
							defer wg.Done()
							if _, err := e.AddPattern(ctx, "docs.python.org/**", false); err == nil {
								mu.Lock()
								successes++
								mu.Unlock()
							}
						}(engines[i%2])
					}
					wg.Wait()

					Expect(successes).To(Equal(1))
					patterns, err := engines[0].Patterns(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(patterns).To(HaveLen(1))
				})
			})

			Describe("daily reset", func() {
				It("should lock at the reset hour and purge temporary patterns", func() {
					app := open()
					_, err := app.engine.AddPattern(ctx, "github.com/**", false)
					Expect(err).NotTo(HaveOccurred())
					_, err = app.engine.AddPattern(ctx, "stackoverflow.com/**", true)
					Expect(err).NotTo(HaveOccurred())
					Expect(app.engine.SetGoal(ctx, "Fix the flaky scheduler")).To(Succeed())

					runCtx, cancel := context.WithCancel(ctx)
					done := make(chan error, 1)
					runner := daemon.NewRunner(daemon.DefaultConfig(), app.engine, app.registry, clock,
						domain.Daemon{PID: os.Getpid(), Role: domain.RoleScheduler, AppVersion: "test"}, zap.NewNop())
					go func() { done <- runner.Run(runCtx) }()
					defer func() {
						cancel()
						<-done
					}()

					Expect(clock.BlockUntilContext(ctx, 3)).To(Succeed())
					alive, err := app.registry.IsAlive()
					Expect(err).NotTo(HaveOccurred())
					Expect(alive).To(BeTrue())

					// The goal set before the runner started is not a missed reset.
					status, err := app.engine.Status(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(status.State).To(Equal(domain.StateUnlockedFocusOn))

					clock.Advance(time.Date(2026, 3, 11, 4, 0, 0, 0, time.UTC).Sub(start))

					Eventually(func() domain.SessionState {
						s, err := app.engine.Status(ctx)
						Expect(err).NotTo(HaveOccurred())
						return s.State
					}).Should(Equal(domain.StateLocked))

					patterns, err := app.engine.Patterns(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(patterns).To(HaveLen(1))
					Expect(patterns[0].Raw).To(Equal("github.com/**"))
				})
			})

			Describe("export and import", func() {
				It("should move settings and patterns between data directories", func() {
					src := open()
					_, err := src.engine.AddPattern(ctx, "*.wikipedia.org/**", false)
					Expect(err).NotTo(HaveOccurred())
					hour := 6
					Expect(src.engine.UpdateSettings(ctx, usecase.UpdateSettings{ResetHour: &hour})).To(Succeed())

					bundle, err := src.engine.Export(ctx)
					Expect(err).NotTo(HaveOccurred())
					data, err := infra.EncodeBundle(bundle)
					Expect(err).NotTo(HaveOccurred())

					otherDir, err := os.MkdirTemp("", "focusgate-import-*")
					Expect(err).NotTo(HaveOccurred())
					DeferCleanup(os.RemoveAll, otherDir)
					store, _, err := infra.OpenStore(kind, otherDir, infra.NewProcessManager())
					Expect(err).NotTo(HaveOccurred())
					toClose = append(toClose, store)
					dst := usecase.NewEngine(store, zap.NewNop(), usecase.EngineOptions{Clock: clock})

					decoded, err := infra.DecodeBundle(data)
					Expect(err).NotTo(HaveOccurred())
					Expect(dst.Import(ctx, decoded)).To(Succeed())

					settings, err := dst.Settings(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(settings.ResetHour).To(Equal(6))
					patterns, err := dst.Patterns(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(patterns).To(HaveLen(1))
					Expect(patterns[0].Raw).To(Equal("*.wikipedia.org/**"))
				})
			})

			Describe("native messaging host", func() {
				It("should answer browser requests against the store", func() {
					app := open()

					var in bytes.Buffer
					for _, req := range []string{
						`{"id":"1","type":"CHECK_URL","payload":{"url":"https://github.com"}}`,
						`{"id":"2","type":"SET_GOAL","payload":{"goal":"Read the Go memory model"}}`,
						`{"id":"3","type":"ADD_PATTERN","payload":{"pattern":"go.dev/**"}}`,
						`{"id":"4","type":"CHECK_URL","payload":{"url":"https://go.dev/ref/mem"}}`,
					} {
						Expect(nativemsg.WriteFrame(&in, json.RawMessage(req))).To(Succeed())
					}

					var out bytes.Buffer
					host := nativemsg.NewHost(app.engine, &in, &out, zap.NewNop())
					unsubscribe := app.engine.Subscribe(host)
					defer unsubscribe()
					Expect(host.Serve(ctx)).To(Succeed())

					results := map[string]json.RawMessage{}
					var broadcasts []string
					for out.Len() > 0 {
						data, err := nativemsg.ReadFrame(&out)
						Expect(err).NotTo(HaveOccurred())
						var f struct {
							ID     string          `json:"id"`
							Type   string          `json:"type"`
							Result json.RawMessage `json:"result"`
							Error  string          `json:"error"`
						}
						Expect(json.Unmarshal(data, &f)).To(Succeed())
						Expect(f.Error).To(BeEmpty())
						if f.ID == "" {
							broadcasts = append(broadcasts, f.Type)
						} else {
							results[f.ID] = f.Result
						}
					}

					Expect(string(results["1"])).To(MatchJSON(`{"allowed":false,"reason":"No focus goal set for today","isLocked":true}`))
					Expect(string(results["4"])).To(MatchJSON(`{"allowed":true,"reason":"URL matches whitelist","goal":"Read the Go memory model","isLocked":false}`))
					Expect(broadcasts).To(Equal([]string{"GOAL_SET", "PATTERNS_CHANGED"}))
				})
			})
		})
	}
})
