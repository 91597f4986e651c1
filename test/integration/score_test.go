//go:build integration

package integration_test

import (
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
	"github.com/quizbuster/quizbuster-api/internal/core/service"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/db/postgres"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/queue"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/security"
	"github.com/quizbuster/quizbuster-api/internal/pkg/clock"
)

var _ = Describe("Postgres user store", func() {
	var (
		repo   *postgres.UserRepository
		auth   *service.AuthService
		scores *service.ScoreService
	)

	BeforeEach(func() {
		env.truncate()

		repo = postgres.NewUserRepository(env.pool)
		codec, err := security.NewJWTCodec(security.TokenConfig{Secret: "integration-key", TTL: 30 * time.Minute})
		Expect(err).NotTo(HaveOccurred())

		clk := clock.New()
		auth = service.NewAuthService(repo, security.NewBcryptHasher(bcrypt.MinCost), codec, clk, zerolog.Nop())
		scores = service.NewScoreService(repo, nil, nil, clk, zerolog.Nop())
	})

	Describe("registration", func() {
		It("rejects a duplicate username and keeps the first account", func() {
			_, err := auth.Register(env.ctx, "alice", "first")
			Expect(err).NotTo(HaveOccurred())

			_, err = auth.Register(env.ctx, "alice", "second")
			Expect(errors.Is(err, domain.ErrConflict)).To(BeTrue())

			_, err = auth.Login(env.ctx, "alice", "first")
			Expect(err).NotTo(HaveOccurred())
		})

		It("lets exactly one of many concurrent registrations win", func() {
			const n = 20
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := auth.Register(env.ctx, "racer", "pw")
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						wins++
					case errors.Is(err, domain.ErrConflict):
						conflicts++
					default:
						Fail("unexpected error: " + err.Error())
					}
				}()
			}
			wg.Wait()

			Expect(wins).To(Equal(1))
			Expect(conflicts).To(Equal(n - 1))
		})
	})

	Describe("score updates", func() {
		BeforeEach(func() {
			_, err := auth.Register(env.ctx, "alice", "pw")
			Expect(err).NotTo(HaveOccurred())
		})

		It("adds to an existing score", func() {
			_, err := repo.AddScore(env.ctx, "alice", 100)
			Expect(err).NotTo(HaveOccurred())

			res, err := scores.AddPoints(env.ctx, ports.ScoreUpdateInput{Username: "alice", Delta: 25})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Total).To(Equal(int64(125)))

			user, err := repo.Fetch(env.ctx, "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(user.CurrentScore()).To(Equal(int64(125)))
		})

		It("fails with NotFound for an unknown user", func() {
			_, err := scores.AddPoints(env.ctx, ports.ScoreUpdateInput{Username: "ghost", Delta: 1})
			Expect(errors.Is(err, domain.ErrNotFound)).To(BeTrue())
		})

		DescribeTable("never loses a concurrent update",
			func(n int) {
				_, err := repo.AddScore(env.ctx, "alice", 7)
				Expect(err).NotTo(HaveOccurred())

				var wg sync.WaitGroup
				errs := make(chan error, n)
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := scores.AddPoints(env.ctx, ports.ScoreUpdateInput{Username: "alice", Delta: 1})
						errs <- err
					}()
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					Expect(err).NotTo(HaveOccurred())
				}

				user, err := repo.Fetch(env.ctx, "alice")
				Expect(err).NotTo(HaveOccurred())
				Expect(user.CurrentScore()).To(Equal(int64(7 + n)))
			},
			Entry("2 writers", 2),
			Entry("10 writers", 10),
			Entry("100 writers", 100),
		)
	})

	Describe("audit trail", func() {
		It("records every applied delta and cascades on delete", func() {
			_, err := auth.Register(env.ctx, "bob", "pw")
			Expect(err).NotTo(HaveOccurred())

			dispatcher := queue.NewDispatcher(2, postgres.NewScoreEventRecorder(env.pool), zerolog.Nop())
			dispatcher.Start(env.ctx)
			audited := service.NewScoreService(repo, nil, dispatcher, clock.New(), zerolog.Nop())

			for _, delta := range []int64{5, -2, 10} {
				_, err := audited.AddPoints(env.ctx, ports.ScoreUpdateInput{Username: "bob", Delta: delta})
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(dispatcher.Shutdown(env.ctx)).To(Succeed())

			var count int
			Expect(env.pool.QueryRow(env.ctx,
				"SELECT count(*) FROM score_events WHERE username = $1", "bob").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(3))

			Expect(repo.Delete(env.ctx, "bob")).To(Succeed())
			Expect(env.pool.QueryRow(env.ctx,
				"SELECT count(*) FROM score_events WHERE username = $1", "bob").Scan(&count)).To(Succeed())
			Expect(count).To(BeZero())
		})
	})

	Describe("leaderboard", func() {
		It("ranks scored users highest first", func() {
			for name, pts := range map[string]int64{"a": 10, "b": 30, "c": 20} {
				_, err := auth.Register(env.ctx, name, "pw")
				Expect(err).NotTo(HaveOccurred())
				_, err = repo.AddScore(env.ctx, name, pts)
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := auth.Register(env.ctx, "unscored", "pw")
			Expect(err).NotTo(HaveOccurred())

			entries, err := scores.Leaderboard(env.ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(Equal([]domain.ScoreEntry{
				{Username: "b", Score: 30},
				{Username: "c", Score: 20},
				{Username: "a", Score: 10},
			}))
		})
	})
})
