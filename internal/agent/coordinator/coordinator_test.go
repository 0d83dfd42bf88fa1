package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-cs-agent/server/internal/agent/cache"
	"github.com/Chative-cs-agent/server/internal/agent/conversations"
	"github.com/Chative-cs-agent/server/internal/agent/handlers"
	"github.com/Chative-cs-agent/server/internal/agent/model"
	"github.com/Chative-cs-agent/server/internal/agent/repo"
	"github.com/Chative-cs-agent/server/internal/agent/router"
	"github.com/Chative-cs-agent/server/internal/agent/stream"
	"github.com/Chative-cs-agent/server/internal/agent/tasks"
)

// spyRouter counts calls and either returns a fixed decision or the rule
// based classification.
type spyRouter struct {
	calls    atomic.Int32
	decision *model.RouteDecision
	hints    map[string]any
	delay    time.Duration
}

func (s *spyRouter) Route(ctx context.Context, text string, hints map[string]any) model.RouteDecision {
	s.calls.Add(1)
	s.hints = hints
	time.Sleep(s.delay)
	if s.decision != nil {
		return *s.decision
	}
	return router.New(nil).Route(ctx, text, hints)
}

type stubHandler struct {
	name      string
	resp      model.AgentResponse
	chunks    []string
	err       error
	panicMsg  string
	knowledge bool
	calls     atomic.Int32
	mu        sync.Mutex
	last      handlers.Request
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) record(req handlers.Request) {
	h.calls.Add(1)
	h.mu.Lock()
	h.last = req
	h.mu.Unlock()
}

func (h *stubHandler) Answer(_ context.Context, req handlers.Request) *model.AgentResponse {
	h.record(req)
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	resp := h.resp
	return &resp
}

func (h *stubHandler) StreamAnswer(ctx context.Context, req handlers.Request) *stream.Reader {
	h.record(req)
	return stream.Produce(ctx, func(ctx context.Context, emit stream.EmitFunc) error {
		req.Trace.UseKnowledge(h.knowledge)
		for _, c := range h.chunks {
			if !emit(c) {
				return ctx.Err()
			}
		}
		return h.err
	})
}

func (h *stubHandler) lastRequest() handlers.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

type memOrders map[string]*model.Order

func (m memOrders) GetOrder(_ context.Context, id string) (*model.Order, error) { return m[id], nil }

type fakeLogistics struct{ status *model.LogisticsStatus }

func (f fakeLogistics) Status(context.Context, string) (*model.LogisticsStatus, error) {
	return f.status, nil
}

type memStore struct {
	mu   sync.Mutex
	rows []string
	err  error
}

func (s *memStore) AppendMessage(_ context.Context, sessionID, role, content string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, sessionID+"|"+role+"|"+content)
	return nil
}

func (s *memStore) Rows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rows...)
}

type fixture struct {
	coord      *Coordinator
	router     *spyRouter
	gateway    *cache.Gateway
	runner     *tasks.Runner
	store      *memStore
	afterSales *stubHandler
	product    *stubHandler
	rdb        *redis.Client
}

func newFixture(t *testing.T, mutate func(*Deps, *fixture)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f := &fixture{
		router:     &spyRouter{},
		gateway:    cache.NewGateway(rdb),
		runner:     tasks.NewRunner(tasks.Config{Concurrency: 8, Timeout: time.Second}),
		store:      &memStore{},
		afterSales: &stubHandler{name: handlers.AgentAfterSales},
		product:    &stubHandler{name: handlers.AgentProduct},
		rdb:        rdb,
	}
	f.afterSales.resp = model.AgentResponse{Success: true, Content: "售后回答", Intent: model.IntentAfterSales}
	f.product.resp = model.AgentResponse{Success: true, Content: "商品回答", Intent: model.IntentPresales}

	deps := Deps{
		Router: f.router,
		Handlers: Handlers{
			Orders:     handlers.NewOrderHandler(memOrders{}, fakeLogistics{}),
			AfterSales: f.afterSales,
			Product:    f.product,
			Canned:     handlers.NewCannedHandler(),
		},
		Cache:       f.gateway,
		HotPolicy:   cache.DefaultHotPolicy(),
		Tasks:       f.runner,
		Store:       f.store,
		ResponseTTL: time.Minute,
	}
	if mutate != nil {
		mutate(&deps, f)
	}
	f.coord = New(deps)
	return f
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.runner.Wait(ctx))
}

func collectChunks(t *testing.T, r *stream.Reader) ([]string, stream.Event) {
	t.Helper()
	defer r.Close()
	var chunks []string
	for {
		ev := r.Next(context.Background())
		if ev.Terminal() {
			return chunks, ev
		}
		chunks = append(chunks, ev.Text)
	}
}

func TestCoordinator_ProcessMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("Should short circuit on a cached answer without routing", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.gateway.Set(ctx, "退货政策", "七天无理由退货", 300*time.Second))

		resp := f.coord.ProcessMessage(ctx, "退货政策", "s1")
		assert.True(t, resp.Success)
		assert.Equal(t, "七天无理由退货", resp.Content)
		assert.Equal(t, model.IntentGeneral, resp.Intent)
		assert.True(t, resp.ContextBool(ContextCacheHit))
		assert.Equal(t, int32(0), f.router.calls.Load())
		assert.Equal(t, int32(0), f.afterSales.calls.Load())
	})

	t.Run("Should answer a greeting from the canned set", func(t *testing.T) {
		f := newFixture(t, nil)
		resp := f.coord.ProcessMessage(ctx, "你好", "s1")
		assert.True(t, resp.Success)
		assert.Equal(t, model.IntentGreeting, resp.Intent)
		assert.Contains(t, handlers.Greetings(), resp.Content)
		assert.Equal(t, "rule", resp.Context["routing_method"])
		assert.False(t, resp.ContextBool(ContextCacheHit))
	})

	t.Run("Should report an unknown order honestly", func(t *testing.T) {
		f := newFixture(t, nil)
		resp := f.coord.ProcessMessage(ctx, "订单号ABC12345怎么样了", "s1")
		assert.False(t, resp.Success)
		assert.Equal(t, model.IntentOrder, resp.Intent)
		assert.Contains(t, resp.Content, "未找到")
		assert.Equal(t, map[string]string{model.FieldOrderID: "ABC12345"}, resp.Context["extracted_info"])

		f.wait(t)
		entry, err := f.gateway.Get(ctx, "订单号ABC12345怎么样了")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Should reject an empty message", func(t *testing.T) {
		f := newFixture(t, nil)
		resp := f.coord.ProcessMessage(ctx, "   ", "s1")
		assert.False(t, resp.Success)
		assert.Equal(t, MsgEmptyMessage, resp.Content)
		assert.Equal(t, int32(0), f.router.calls.Load())
	})

	t.Run("Should return a failure when routing fails", func(t *testing.T) {
		f := newFixture(t, nil)
		f.router.decision = &model.RouteDecision{Intent: model.IntentUnknown, RoutingMethod: model.RoutingRule}
		resp := f.coord.ProcessMessage(ctx, "退货", "s1")
		assert.False(t, resp.Success)
		assert.Equal(t, MsgProcessingError, resp.Content)
		assert.Equal(t, int32(0), f.afterSales.calls.Load())
	})

	t.Run("Should convert a handler panic into an apology", func(t *testing.T) {
		f := newFixture(t, nil)
		f.product.panicMsg = "boom"
		resp := f.coord.ProcessMessage(ctx, "手机价格多少", "s1")
		assert.False(t, resp.Success)
		assert.Equal(t, MsgProcessingError, resp.Content)
	})

	t.Run("Should attach the resolved order to after-sales requests", func(t *testing.T) {
		order := &model.Order{OrderID: "ABC12345", Status: "已签收"}
		f := newFixture(t, func(d *Deps, _ *fixture) {
			d.Handlers.Orders = handlers.NewOrderHandler(memOrders{"ABC12345": order}, nil)
		})
		f.router.decision = &model.RouteDecision{
			Intent: model.IntentAfterSales, Success: true, RoutingMethod: model.RoutingModel,
			ExtractedFields: map[string]string{model.FieldOrderID: "ABC12345"},
		}

		resp := f.coord.ProcessMessage(ctx, "订单ABC12345想退货", "s1")
		assert.True(t, resp.Success)
		assert.Equal(t, order, f.afterSales.lastRequest().Order)
	})

	t.Run("Should send logistics questions without a tracking number to after-sales", func(t *testing.T) {
		f := newFixture(t, nil)
		resp := f.coord.ProcessMessage(ctx, "什么时候发货", "s1")
		assert.Equal(t, "售后回答", resp.Content)
		assert.Equal(t, int32(1), f.afterSales.calls.Load())
	})

	t.Run("Should look up logistics when a tracking number is present", func(t *testing.T) {
		f := newFixture(t, func(d *Deps, _ *fixture) {
			d.Handlers.Orders = handlers.NewOrderHandler(memOrders{}, fakeLogistics{status: &model.LogisticsStatus{
				TrackingNumber: "SF1234567890", Carrier: "顺丰", Status: "运输中",
			}})
		})
		resp := f.coord.ProcessMessage(ctx, "快递单号SF1234567890到哪了", "s1")
		assert.True(t, resp.Success)
		assert.Equal(t, model.IntentLogistics, resp.Intent)
		assert.Contains(t, resp.Content, "运输中")
		assert.Equal(t, int32(0), f.afterSales.calls.Load())
	})

	t.Run("Should update statistics", func(t *testing.T) {
		f := newFixture(t, nil)
		f.coord.ProcessMessage(ctx, "手机价格多少", "s1")
		f.product.resp.Success = false
		f.coord.ProcessMessage(ctx, "耳机价格多少", "s1")

		stats := f.coord.Stats()
		assert.Equal(t, 2, stats[StatRouter].Calls)
		assert.Equal(t, 1.0, stats[StatRouter].SuccessRate)
		assert.Equal(t, 2, stats[handlers.AgentProduct].Calls)
		assert.InDelta(t, 0.5, stats[handlers.AgentProduct].SuccessRate, 1e-9)
		assert.Equal(t, 0, stats[handlers.AgentOrder].Calls)
	})
}

func TestCoordinator_Persistence(t *testing.T) {
	ctx := context.Background()

	t.Run("Should write the transcript and cache a hot answer", func(t *testing.T) {
		f := newFixture(t, nil)
		f.product.resp.Content = strings.Repeat("好", 30)

		f.coord.ProcessMessage(ctx, "手机价格多少", "s1")
		f.wait(t)

		assert.Equal(t, []string{"s1|user|手机价格多少", "s1|assistant|" + strings.Repeat("好", 30)}, f.store.Rows())
		entry, err := f.gateway.Get(ctx, "手机价格多少")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, strings.Repeat("好", 30), entry.Response)
	})

	t.Run("Should cache even when the transcript write fails", func(t *testing.T) {
		f := newFixture(t, nil)
		f.store.err = errors.New("disk full")
		f.product.resp.Content = strings.Repeat("好", 90)

		resp := f.coord.ProcessMessage(ctx, "手机价格多少", "s1")
		assert.True(t, resp.Success)
		f.wait(t)

		entry, err := f.gateway.Get(ctx, "手机价格多少")
		require.NoError(t, err)
		assert.NotNil(t, entry)
	})

	t.Run("Should not cache short answers", func(t *testing.T) {
		f := newFixture(t, nil)
		f.coord.ProcessMessage(ctx, "手机价格多少", "s1")
		f.wait(t)

		entry, err := f.gateway.Get(ctx, "手机价格多少")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Should feed the session window back into routing", func(t *testing.T) {
		var convs *conversations.MessagesManager
		f := newFixture(t, func(d *Deps, f *fixture) {
			cfg := model.SessionConfig{TTL: time.Hour, MaxTurns: 3}
			convs = conversations.NewMessagesManager(repo.NewRedisSessionRepository(f.rdb, cfg), cfg)
			d.Conversations = convs
		})

		f.coord.ProcessMessage(ctx, "你好", "s1")
		f.wait(t)
		msgs, err := convs.History(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, "你好", msgs[0].Content)

		f.coord.ProcessMessage(ctx, "手机价格多少", "s1")
		assert.Contains(t, f.router.hints[router.HintConversation], "UserMessage(你好)")
	})
}

func TestCoordinator_StreamResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("Should deliver a cached answer as a single chunk", func(t *testing.T) {
		f := newFixture(t, nil)
		require.NoError(t, f.gateway.Set(ctx, "退货政策", "七天无理由退货", 300*time.Second))

		chunks, last := collectChunks(t, f.coord.StreamResponse(ctx, "退货政策", "s1"))
		assert.Equal(t, []string{"七天无理由退货"}, chunks)
		assert.Equal(t, stream.KindEnd, last.Kind)
		assert.Equal(t, int32(0), f.router.calls.Load())
	})

	t.Run("Should pass handler chunks through unchanged", func(t *testing.T) {
		f := newFixture(t, nil)
		f.product.chunks = []string{"X1", " 售价", "2999元"}

		chunks, last := collectChunks(t, f.coord.StreamResponse(ctx, "手机价格多少", "s1"))
		assert.Equal(t, []string{"X1", " 售价", "2999元"}, chunks)
		assert.Equal(t, stream.KindEnd, last.Kind)

		f.wait(t)
		assert.Equal(t, []string{"s1|user|手机价格多少", "s1|assistant|X1 售价2999元"}, f.store.Rows())
		entry, err := f.gateway.Get(ctx, "手机价格多少")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Should end a failed stream with a readable error", func(t *testing.T) {
		f := newFixture(t, nil)
		f.product.chunks = []string{"部分"}
		f.product.err = errors.New("model unavailable")

		chunks, last := collectChunks(t, f.coord.StreamResponse(ctx, "手机价格多少", "s1"))
		assert.Equal(t, []string{"部分", MsgStreamError}, chunks)
		assert.Equal(t, stream.KindEnd, last.Kind)
		assert.Equal(t, 0.0, f.coord.Stats()[handlers.AgentProduct].SuccessRate)
	})

	t.Run("Should stream canned greetings", func(t *testing.T) {
		f := newFixture(t, nil)
		text, err := stream.Collect(ctx, f.coord.StreamResponse(ctx, "你好", "s1"))
		require.NoError(t, err)
		assert.Contains(t, handlers.Greetings(), text)
	})

	t.Run("Should stream an order miss", func(t *testing.T) {
		f := newFixture(t, nil)
		text, err := stream.Collect(ctx, f.coord.StreamResponse(ctx, "订单号ABC12345怎么样了", "s1"))
		require.NoError(t, err)
		assert.Contains(t, text, "未找到")
	})

	t.Run("Should cache a long streamed answer for the next request", func(t *testing.T) {
		f := newFixture(t, nil)
		answer := strings.Repeat("退", 60) + strings.Repeat("货", 60)
		f.afterSales.chunks = []string{answer[:len(answer)/2], answer[len(answer)/2:]}

		text, err := stream.Collect(ctx, f.coord.StreamResponse(ctx, "退货怎么办", "s1"))
		require.NoError(t, err)
		assert.Equal(t, answer, text)
		f.wait(t)

		entry, err := f.gateway.Get(ctx, "退货怎么办")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, answer, entry.Response)

		chunks, last := collectChunks(t, f.coord.StreamResponse(ctx, "退货怎么办", "s2"))
		assert.Equal(t, []string{answer}, chunks)
		assert.Equal(t, stream.KindEnd, last.Kind)
		assert.Equal(t, int32(1), f.router.calls.Load())
		assert.Equal(t, int32(1), f.afterSales.calls.Load())
	})

	t.Run("Should cache a short streamed answer only when knowledge backed it", func(t *testing.T) {
		short := strings.Repeat("退", 15)

		grounded := newFixture(t, nil)
		grounded.afterSales.chunks = []string{short}
		grounded.afterSales.knowledge = true
		_, err := stream.Collect(ctx, grounded.coord.StreamResponse(ctx, "退货怎么办", "s1"))
		require.NoError(t, err)
		grounded.wait(t)
		entry, err := grounded.gateway.Get(ctx, "退货怎么办")
		require.NoError(t, err)
		assert.NotNil(t, entry)

		ungrounded := newFixture(t, nil)
		ungrounded.afterSales.chunks = []string{short}
		_, err = stream.Collect(ctx, ungrounded.coord.StreamResponse(ctx, "退货怎么办", "s1"))
		require.NoError(t, err)
		ungrounded.wait(t)
		entry, err = ungrounded.gateway.Get(ctx, "退货怎么办")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Should not cache a streamed order miss", func(t *testing.T) {
		f := newFixture(t, nil)
		_, err := stream.Collect(ctx, f.coord.StreamResponse(ctx, "订单号ABC12345怎么样了", "s1"))
		require.NoError(t, err)
		f.wait(t)

		entry, err := f.gateway.Get(ctx, "订单号ABC12345怎么样了")
		require.NoError(t, err)
		assert.Nil(t, entry)
		assert.Len(t, f.store.Rows(), 2)
	})

	t.Run("Should cache a found order without its progress line", func(t *testing.T) {
		order := &model.Order{OrderID: "ABC12345", Status: "已发货", ProductName: "X1 手机", CustomerPhone: "13812345678"}
		f := newFixture(t, func(d *Deps, _ *fixture) {
			d.Handlers.Orders = handlers.NewOrderHandler(memOrders{"ABC12345": order}, nil)
		})
		text, err := stream.Collect(ctx, f.coord.StreamResponse(ctx, "订单号ABC12345怎么样了", "s1"))
		require.NoError(t, err)
		f.wait(t)

		entry, err := f.gateway.Get(ctx, "订单号ABC12345怎么样了")
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.True(t, strings.HasSuffix(text, entry.Response))
		assert.Less(t, len(entry.Response), len(text))
	})

	t.Run("Should time the handler apart from routing", func(t *testing.T) {
		f := newFixture(t, nil)
		f.router.delay = 80 * time.Millisecond
		f.product.chunks = []string{"X1"}

		_, err := stream.Collect(ctx, f.coord.StreamResponse(ctx, "手机价格多少", "s1"))
		require.NoError(t, err)

		stats := f.coord.Stats()
		require.Equal(t, 1, stats[handlers.AgentProduct].Calls)
		assert.Less(t, stats[handlers.AgentProduct].AvgProcessTime, f.router.delay.Seconds())
	})

	t.Run("Should stream a routing failure as an apology", func(t *testing.T) {
		f := newFixture(t, nil)
		f.router.decision = &model.RouteDecision{Intent: model.IntentUnknown}
		text, err := stream.Collect(ctx, f.coord.StreamResponse(ctx, "退货", "s1"))
		require.NoError(t, err)
		assert.Equal(t, MsgProcessingError, text)
	})
}

func TestStats(t *testing.T) {
	t.Run("Should keep incremental means", func(t *testing.T) {
		s := NewStats()
		s.Record(handlers.AgentOrder, true, 1)
		s.Record(handlers.AgentOrder, false, 3)
		s.Record(handlers.AgentOrder, true, 2)

		got := s.Snapshot()[handlers.AgentOrder]
		assert.Equal(t, 3, got.Calls)
		assert.InDelta(t, 2.0/3.0, got.SuccessRate, 1e-9)
		assert.InDelta(t, 2.0, got.AvgProcessTime, 1e-9)
	})

	t.Run("Should return a copy", func(t *testing.T) {
		s := NewStats()
		snap := s.Snapshot()
		s.Record(StatRouter, true, 1)
		assert.Equal(t, 0, snap[StatRouter].Calls)
	})
}
