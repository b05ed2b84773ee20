package usecases

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
	"neowhatai/internal/repository"
)

// fakeTenants is an in-memory TenantStore.
type fakeTenants struct {
	mu      sync.Mutex
	tenants []*entities.Tenant
	logs    *fakeLogs
	docs    *fakeDocs
	ListErr error
}

func newFakeTenants(tenants ...*entities.Tenant) *fakeTenants {
	return &fakeTenants{tenants: tenants}
}

func (f *fakeTenants) Get(_ context.Context, id string) (*entities.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.ID == id {
			c := *t
			return &c, nil
		}
	}
	return nil, fmt.Errorf("get tenant %s: %w", id, repository.ErrNotFound)
}

func (f *fakeTenants) GetActiveBySession(_ context.Context, sessionID string) (*entities.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.IsActive && t.SessionID == sessionID {
			c := *t
			return &c, nil
		}
	}
	return nil, fmt.Errorf("session %s: %w", sessionID, repository.ErrNotFound)
}

func (f *fakeTenants) ListActive(_ context.Context, limit int) ([]entities.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	out := []entities.Tenant{}
	for _, t := range f.tenants {
		if t.IsActive {
			out = append(out, *t)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeTenants) List(ctx context.Context) ([]entities.TenantSummary, error) {
	f.mu.Lock()
	tenants := append([]*entities.Tenant(nil), f.tenants...)
	f.mu.Unlock()

	out := []entities.TenantSummary{}
	for _, t := range tenants {
		logCount, docCount := 0, 0
		if f.logs != nil {
			logCount, _ = f.logs.Count(ctx, t.ID)
		}
		if f.docs != nil {
			docCount, _ = f.docs.CountEmbedded(ctx, t.ID)
		}
		out = append(out, t.Summarize(logCount, docCount))
	}
	return out, nil
}

func (f *fakeTenants) Create(_ context.Context, t *entities.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = fmt.Sprintf("tenant-%d", len(f.tenants)+1)
	}
	c := *t
	f.tenants = append(f.tenants, &c)
	return nil
}

func (f *fakeTenants) Update(_ context.Context, t *entities.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.tenants {
		if existing.ID == t.ID {
			c := *t
			f.tenants[i] = &c
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeTenants) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tenants {
		if t.ID == id {
			f.tenants = append(f.tenants[:i], f.tenants[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeTenants) Count(_ context.Context) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := 0
	for _, t := range f.tenants {
		if t.IsActive {
			active++
		}
	}
	return len(f.tenants), active, nil
}

// fakeDoc carries a fixed similarity to any query.
type fakeDoc struct {
	Content    string
	Similarity float64
}

// fakeDocs is an in-memory DocumentStore with failure knobs.
type fakeDocs struct {
	mu         sync.Mutex
	byTenant   map[string][]fakeDoc
	stored     map[string][]entities.Document
	CountErr   error
	MatchErr   error
	SearchErr  error
	Thresholds []float64 // every threshold MatchDocuments was called with
	Searched   []string  // tenant:term of every SearchText call
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{byTenant: map[string][]fakeDoc{}, stored: map[string][]entities.Document{}}
}

func (f *fakeDocs) add(tenantID string, docs ...fakeDoc) *fakeDocs {
	f.byTenant[tenantID] = append(f.byTenant[tenantID], docs...)
	return f
}

func (f *fakeDocs) CountEmbedded(_ context.Context, tenantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	return len(f.byTenant[tenantID]), nil
}

func (f *fakeDocs) MatchDocuments(_ context.Context, tenantID string, _ []float32, threshold float64, count int) ([]entities.RetrievedPassage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Thresholds = append(f.Thresholds, threshold)
	if f.MatchErr != nil {
		return nil, f.MatchErr
	}
	out := []entities.RetrievedPassage{}
	for _, d := range f.byTenant[tenantID] {
		if d.Similarity > threshold {
			out = append(out, entities.RetrievedPassage{Content: d.Content, Similarity: d.Similarity})
		}
	}
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (f *fakeDocs) SearchText(_ context.Context, tenantID, term string, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searched = append(f.Searched, tenantID+":"+term)
	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	out := []string{}
	for _, d := range f.byTenant[tenantID] {
		if strings.Contains(strings.ToLower(d.Content), strings.ToLower(term)) {
			out = append(out, d.Content)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeDocs) ReplaceForTenant(_ context.Context, tenantID string, docs []entities.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[tenantID] = docs
	f.byTenant[tenantID] = nil
	for _, d := range docs {
		f.byTenant[tenantID] = append(f.byTenant[tenantID], fakeDoc{Content: d.Content, Similarity: 1})
	}
	return nil
}

func (f *fakeDocs) DeleteForTenant(_ context.Context, tenantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.byTenant[tenantID])
	delete(f.byTenant, tenantID)
	delete(f.stored, tenantID)
	return int64(n), nil
}

func (f *fakeDocs) ListSources(_ context.Context, tenantID string) ([]entities.DocumentSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{}
	for _, d := range f.stored[tenantID] {
		counts[d.Metadata.Source]++
	}
	out := []entities.DocumentSource{}
	for src, n := range counts {
		out = append(out, entities.DocumentSource{Source: src, Chunks: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

// fakeLedger mimics the unique constraint on message_id. Delay widens race windows.
type fakeLedger struct {
	mu       sync.Mutex
	seen     map[string]string
	Delay    time.Duration
	CheckErr error
	MarkErr  error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{seen: map[string]string{}}
}

func (f *fakeLedger) HasProcessed(_ context.Context, messageID string) (bool, error) {
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CheckErr != nil {
		return false, f.CheckErr
	}
	_, ok := f.seen[messageID]
	return ok, nil
}

func (f *fakeLedger) MarkProcessed(_ context.Context, messageID, tenantID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MarkErr != nil {
		return false, f.MarkErr
	}
	if _, ok := f.seen[messageID]; ok {
		return false, nil
	}
	f.seen[messageID] = tenantID
	return true, nil
}

// fakeLogs is an in-memory LogStore.
type fakeLogs struct {
	mu        sync.Mutex
	entries   []entities.ConversationLog
	InsertErr error
}

func (f *fakeLogs) Insert(_ context.Context, entry *entities.ConversationLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		return f.InsertErr
	}
	entry.ID = int64(len(f.entries) + 1)
	entry.CreatedAt = time.Now()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLogs) Recent(_ context.Context, tenantID, userPhone string, limit int) ([]entities.ConversationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matching := []entities.ConversationLog{}
	for _, e := range f.entries {
		if e.TenantID == tenantID && e.UserPhone == userPhone {
			matching = append(matching, e)
		}
	}
	if len(matching) > limit {
		matching = matching[len(matching)-limit:]
	}
	return matching, nil
}

func (f *fakeLogs) List(_ context.Context, tenantID string, limit int) ([]entities.ConversationLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entities.ConversationLog{}
	for i := len(f.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if tenantID == "" || f.entries[i].TenantID == tenantID {
			out = append(out, f.entries[i])
		}
	}
	return out, nil
}

func (f *fakeLogs) Count(_ context.Context, tenantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.entries {
		if e.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (f *fakeLogs) forTenant(tenantID string) []entities.ConversationLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []entities.ConversationLog{}
	for _, e := range f.entries {
		if e.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

type fakeEmbedder struct {
	Err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return []float32{float32(len(text)), 0, 1}, nil
}

// fakeCompleter answers with Reply, or with the first context line containing Echo.
type fakeCompleter struct {
	mu    sync.Mutex
	Reply string
	Echo  string
	Err   error
	calls []fakeCompletion
}

type fakeCompletion struct {
	Messages []entities.ChatMessage
	Opts     interfaces.CompletionOptions
}

func (f *fakeCompleter) Complete(_ context.Context, messages []entities.ChatMessage, opts interfaces.CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCompletion{Messages: messages, Opts: opts})
	if f.Err != nil {
		return "", f.Err
	}
	if f.Echo != "" {
		for _, line := range strings.Split(messages[0].Content, "\n") {
			if strings.Contains(line, f.Echo) && !strings.Contains(line, "\"") {
				return line, nil
			}
		}
	}
	return f.Reply, nil
}

type fakeMessenger struct {
	mu    sync.Mutex
	sent  []entities.OutboundMessage
	Err   error
	Delay time.Duration
}

func (f *fakeMessenger) Send(_ context.Context, msg entities.OutboundMessage) error {
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.Err
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
