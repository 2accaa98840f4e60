package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/sheets"
	"gastos/internal/sheets/memory"

	"github.com/shopspring/decimal"
)

// fakeMedium wraps the memory store with read counters and injectable write
// failures.
type fakeMedium struct {
	*memory.Store

	mu         sync.Mutex
	reads      map[string]int
	failWrites error
}

func newFakeMedium() *fakeMedium {
	return &fakeMedium{Store: memory.New(), reads: map[string]int{}}
}

func (f *fakeMedium) ReadTable(ctx context.Context, name string) (sheets.Table, error) {
	f.mu.Lock()
	f.reads[name]++
	f.mu.Unlock()
	return f.Store.ReadTable(ctx, name)
}

func (f *fakeMedium) WriteTable(ctx context.Context, name string, rows []sheets.Row) error {
	if err := f.writeErr(); err != nil {
		return err
	}
	return f.Store.WriteTable(ctx, name, rows)
}

func (f *fakeMedium) AppendRow(ctx context.Context, name string, row sheets.Row) error {
	if err := f.writeErr(); err != nil {
		return err
	}
	return f.Store.AppendRow(ctx, name, row)
}

func (f *fakeMedium) writeErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failWrites
}

func (f *fakeMedium) readCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[name]
}

// plainMedium hides the append capability so writes go through a full
// read-modify-write.
type plainMedium struct{ m *memory.Store }

func (p plainMedium) ReadTable(ctx context.Context, name string) (sheets.Table, error) {
	return p.m.ReadTable(ctx, name)
}

func (p plainMedium) WriteTable(ctx context.Context, name string, rows []sheets.Row) error {
	return p.m.WriteTable(ctx, name, rows)
}

// stallingMedium pauses the first armed movements read after it has taken
// its copy of the table, until release is closed.
type stallingMedium struct {
	*memory.Store

	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newStallingMedium() *stallingMedium {
	return &stallingMedium{
		Store:   memory.New(),
		loaded:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (m *stallingMedium) ReadTable(ctx context.Context, name string) (sheets.Table, error) {
	t, err := m.Store.ReadTable(ctx, name)
	if name == sheets.MovementsTable && m.armed.CompareAndSwap(true, false) {
		close(m.loaded)
		<-m.release
	}
	return t, err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.ChangeEvent
	err    error
}

func (p *recordingPublisher) PublishChange(_ context.Context, ev core.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, m sheets.Medium, opts Options) (*RecordStore, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)}
	if opts.Clock == nil {
		opts.Clock = clk.Now
	}
	if opts.NewID == nil {
		opts.NewID = sequentialIDs()
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	s := NewRecordStore(m, opts)
	if _, err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s, clk
}

func expense(user, amount, desc, category string) core.MovementInput {
	return core.MovementInput{
		User:        user,
		Amount:      decimal.RequireFromString(amount),
		Description: desc,
		Category:    category,
		Kind:        core.KindExpense,
	}
}

func TestFelipeScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New(), Options{})

	cats, err := s.ListCategories(ctx, "felipe")
	if err != nil {
		t.Fatalf("ListCategories: %v", err)
	}
	if len(cats) != 4 || cats[0] != "Comida" {
		t.Fatalf("categories = %v, want defaults", cats)
	}

	m, err := s.AddMovement(ctx, expense("felipe", "15000", "Almuerzo", "comida"))
	if err != nil {
		t.Fatalf("AddMovement: %v", err)
	}
	if m.Category != "Comida" {
		t.Errorf("category = %q, want canonical Comida", m.Category)
	}
	if m.Timestamp != "2024-01-02 10:00" {
		t.Errorf("timestamp = %q", m.Timestamp)
	}
	if m.ID == "" {
		t.Error("movement id should be set")
	}

	ms, err := s.ListMovements(ctx, "felipe")
	if err != nil {
		t.Fatalf("ListMovements: %v", err)
	}
	if len(ms) != 1 || ms[0].ID != m.ID {
		t.Fatalf("movements = %+v", ms)
	}
	sum := core.Summarize(ms)
	if !sum.Net.Equal(decimal.NewFromInt(-15000)) {
		t.Errorf("net = %s, want -15000", sum.Net)
	}

	others, err := s.ListMovements(ctx, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if len(others) != 0 {
		t.Errorf("other user sees %d movements", len(others))
	}
}

func TestDeleteMovementTwice(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s, _ := newTestStore(t, mem, Options{})
	if _, err := s.ListCategories(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	m, err := s.AddMovement(ctx, expense("ana", "10", "Bus", "Transporte"))
	if err != nil {
		t.Fatal(err)
	}

	ok, err := s.DeleteMovement(ctx, m.ID)
	if err != nil || !ok {
		t.Fatalf("first delete = %v, %v", ok, err)
	}
	writes := mem.Writes()
	ok, err = s.DeleteMovement(ctx, m.ID)
	if err != nil || ok {
		t.Fatalf("second delete = %v, %v", ok, err)
	}
	if mem.Writes() != writes {
		t.Error("deleting a missing id should not write")
	}

	ms, _ := s.ListMovements(ctx, "ana")
	if len(ms) != 0 {
		t.Fatalf("movements left: %v", ms)
	}
}

func TestCacheReflectsWritesBeforeTTL(t *testing.T) {
	ctx := context.Background()
	fm := newFakeMedium()
	s, _ := newTestStore(t, fm, Options{MovementsTTL: time.Hour, CategoriesTTL: time.Hour})
	base := fm.readCount(sheets.MovementsTable)

	if _, err := s.ListMovements(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ListMovements(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	if got := fm.readCount(sheets.MovementsTable) - base; got != 1 {
		t.Fatalf("medium reads = %d, want 1 while cached", got)
	}

	if _, err := s.ListCategories(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	m, err := s.AddMovement(ctx, expense("ana", "2500", "Cine", "Ocio"))
	if err != nil {
		t.Fatal(err)
	}
	ms, err := s.ListMovements(ctx, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 || ms[0].ID != m.ID {
		t.Fatalf("write not visible through cache: %v", ms)
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	fm := newFakeMedium()
	s, clk := newTestStore(t, fm, Options{})
	base := fm.readCount(sheets.MovementsTable)

	s.ListMovements(ctx, "ana")
	clk.Advance(29 * time.Second)
	s.ListMovements(ctx, "ana")
	if got := fm.readCount(sheets.MovementsTable) - base; got != 1 {
		t.Fatalf("reads within TTL = %d, want 1", got)
	}
	clk.Advance(time.Second)
	s.ListMovements(ctx, "ana")
	if got := fm.readCount(sheets.MovementsTable) - base; got != 2 {
		t.Fatalf("reads after TTL = %d, want 2", got)
	}
}

func TestDefaultCategoriesSeededOnce(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s, _ := newTestStore(t, mem, Options{})
	before := mem.Writes()

	for i := 0; i < 3; i++ {
		cats, err := s.ListCategories(ctx, "ana")
		if err != nil {
			t.Fatal(err)
		}
		if len(cats) != 4 {
			t.Fatalf("categories = %v", cats)
		}
		s.Invalidate("")
	}
	if got := mem.Writes() - before; got != 1 {
		t.Fatalf("writes = %d, want a single seeding write", got)
	}
}

func TestCustomDefaultCategories(t *testing.T) {
	s, _ := newTestStore(t, memory.New(), Options{DefaultCategories: []string{"Casa", "Viajes"}})
	cats, err := s.ListCategories(context.Background(), "ana")
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 2 || cats[1] != "Viajes" {
		t.Fatalf("categories = %v", cats)
	}
}

func TestAddCategoryDuplicateIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New(), Options{})
	if _, err := s.ListCategories(ctx, "ana"); err != nil {
		t.Fatal(err)
	}

	_, err := s.AddCategory(ctx, "ana", "  comida ")
	var dup *core.DuplicateError
	if !errors.As(err, &dup) || !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("err = %v, want duplicate", err)
	}
	if dup.Name != "Comida" {
		t.Errorf("duplicate name = %q", dup.Name)
	}

	name, err := s.AddCategory(ctx, "ana", " Viajes ")
	if err != nil || name != "Viajes" {
		t.Fatalf("AddCategory = %q, %v", name, err)
	}
	cats, _ := s.ListCategories(ctx, "ana")
	if len(cats) != 5 || cats[4] != "Viajes" {
		t.Fatalf("categories = %v", cats)
	}

	// same name for another user is fine
	if _, err := s.AddCategory(ctx, "bob", "Comida"); err != nil {
		t.Fatalf("other user: %v", err)
	}
}

func TestAddCategoryRejectsBlank(t *testing.T) {
	s, _ := newTestStore(t, memory.New(), Options{})
	_, err := s.AddCategory(context.Background(), "ana", "   ")
	if !errors.Is(err, core.ErrValidation) || !errors.Is(err, core.ErrEmptyCategory) {
		t.Fatalf("err = %v", err)
	}
	_, err = s.AddCategory(context.Background(), "", "Casa")
	if !errors.Is(err, core.ErrEmptyUser) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteCategoryExactName(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New(), Options{})
	s.ListCategories(ctx, "ana")
	s.ListCategories(ctx, "bob")

	ok, err := s.DeleteCategory(ctx, "ana", "ocio")
	if err != nil || ok {
		t.Fatalf("case-mismatched delete = %v, %v", ok, err)
	}
	ok, err = s.DeleteCategory(ctx, "ana", "Ocio")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}

	ana, _ := s.ListCategories(ctx, "ana")
	bob, _ := s.ListCategories(ctx, "bob")
	if len(ana) != 3 || len(bob) != 4 {
		t.Fatalf("ana = %v, bob = %v", ana, bob)
	}
}

func TestDeleteCategoryKeepsMovements(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New(), Options{})
	s.ListCategories(ctx, "ana")
	if _, err := s.AddMovement(ctx, expense("ana", "10", "Cine", "Ocio")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteCategory(ctx, "ana", "Ocio"); err != nil {
		t.Fatal(err)
	}
	ms, _ := s.ListMovements(ctx, "ana")
	if len(ms) != 1 || ms[0].Category != "Ocio" {
		t.Fatalf("movements = %v", ms)
	}
}

func TestAddMovementValidation(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s, _ := newTestStore(t, mem, Options{})
	s.ListCategories(ctx, "ana")
	writes := mem.Writes()

	tests := []struct {
		name string
		in   core.MovementInput
		want error
	}{
		{"zero amount", expense("ana", "0", "Bus", "Transporte"), core.ErrInvalidAmount},
		{"negative amount", expense("ana", "-5", "Bus", "Transporte"), core.ErrInvalidAmount},
		{"blank description", expense("ana", "5", "   ", "Transporte"), core.ErrEmptyDescription},
		{"blank category", expense("ana", "5", "Bus", ""), core.ErrEmptyCategory},
		{"unknown category", expense("ana", "5", "Bus", "Viajes"), core.ErrUnknownCategory},
		{"blank user", expense("", "5", "Bus", "Transporte"), core.ErrEmptyUser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddMovement(ctx, tt.in)
			if !errors.Is(err, core.ErrValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if mem.Writes() != writes {
		t.Fatal("rejected movements must not be written")
	}
}

func TestAddMovementKeepsGivenTimestampAndKind(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New(), Options{})
	s.ListCategories(ctx, "ana")

	in := expense("ana", "200000", "Sueldo", "Otros")
	in.Kind = "ingreso"
	in.Timestamp = " 2023-12-31 23:59 "
	m, err := s.AddMovement(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if m.Kind != core.KindIncome || m.Timestamp != "2023-12-31 23:59" {
		t.Fatalf("movement = %+v", m)
	}
	ms, _ := s.ListMovements(ctx, "ana")
	if ms[0].Kind != core.KindIncome || !ms[0].Amount.Equal(decimal.NewFromInt(200000)) {
		t.Fatalf("stored = %+v", ms[0])
	}
}

func TestAddMovementWithoutAppender(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s, _ := newTestStore(t, plainMedium{m: mem}, Options{})
	s.ListCategories(ctx, "ana")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AddMovement(ctx, expense("ana", fmt.Sprint(i+1), "Bus", "Transporte")); err != nil {
				t.Errorf("AddMovement: %v", err)
			}
		}(i)
	}
	wg.Wait()

	ms, err := s.ListMovements(ctx, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 20 {
		t.Fatalf("movements = %d, want 20", len(ms))
	}
}

func TestKindColumnMigration(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	mem.Seed(sheets.MovementsTable,
		[]string{"Id", "Usuario", "Fecha", "Monto", "Nombre", "Categoría"},
		[][]string{{"1", "felipe", "2023-05-01 12:00", "15000", "Almuerzo", "Comida"}})

	s := NewRecordStore(mem, Options{Logger: log.Discard()})

	// reads before the migration already see the default
	ms, err := s.ListMovements(ctx, "felipe")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 || ms[0].Kind != core.KindExpense {
		t.Fatalf("movements = %+v", ms)
	}

	applied, err := s.Init(ctx)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(applied) != 2 || applied[0].Name != "create-tables" || applied[1].Name != "add-kind-column" {
		t.Fatalf("applied = %+v", applied)
	}

	header, records := mem.Raw(sheets.MovementsTable)
	if len(header) != 7 || header[6] != "kind" {
		t.Fatalf("header = %v", header)
	}
	if records[0][6] != "Expense" || records[0][3] != "15000" {
		t.Fatalf("record = %v", records[0])
	}

	applied, err = s.Init(ctx)
	if err != nil || len(applied) != 0 {
		t.Fatalf("second Init = %v, %v", applied, err)
	}
}

func TestBackingStoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	fm := newFakeMedium()
	s, _ := newTestStore(t, fm, Options{})
	s.ListCategories(ctx, "ana")
	if _, err := s.ListMovements(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	base := fm.readCount(sheets.MovementsTable)

	fm.mu.Lock()
	fm.failWrites = core.NewBackingStoreError("memory", "write", "movements", errors.New("disk full"))
	fm.mu.Unlock()

	_, err := s.AddMovement(ctx, expense("ana", "5", "Bus", "Transporte"))
	if !errors.Is(err, core.ErrBackingStore) {
		t.Fatalf("err = %v, want backing store error", err)
	}

	// a failed write still invalidates
	s.ListMovements(ctx, "ana")
	if got := fm.readCount(sheets.MovementsTable) - base; got != 1 {
		t.Fatalf("reads after failed write = %d, want 1", got)
	}
}

func TestPublisherNotifiedAndFailuresIgnored(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	s, _ := newTestStore(t, memory.New(), Options{Publisher: pub})
	s.ListCategories(ctx, "ana")
	m, err := s.AddMovement(ctx, expense("ana", "5", "Bus", "Transporte"))
	if err != nil {
		t.Fatal(err)
	}
	s.DeleteMovement(ctx, m.ID)

	pub.mu.Lock()
	events := append([]core.ChangeEvent(nil), pub.events...)
	pub.err = errors.New("broker down")
	pub.mu.Unlock()

	// migrate, seed, add, delete
	want := []string{core.ChangeMigrate, core.ChangeSeed, core.ChangeAdd, core.ChangeDelete}
	if len(events) != len(want) {
		t.Fatalf("events = %+v", events)
	}
	for i, op := range want {
		if events[i].Op != op {
			t.Errorf("event %d op = %q, want %q", i, events[i].Op, op)
		}
	}
	if events[2].Key != m.ID || events[2].Table != sheets.MovementsTable {
		t.Errorf("add event = %+v", events[2])
	}

	if _, err := s.AddCategory(ctx, "ana", "Viajes"); err != nil {
		t.Fatalf("publish failure leaked: %v", err)
	}
}

func TestPingUsesCache(t *testing.T) {
	fm := newFakeMedium()
	s, clk := newTestStore(t, fm, Options{})

	before := fm.readCount(sheets.MovementsTable)
	for i := 0; i < 3; i++ {
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	}
	if got := fm.readCount(sheets.MovementsTable) - before; got != 1 {
		t.Fatalf("medium reads = %d, want 1", got)
	}

	clk.Advance(DefaultMovementsTTL)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fm.readCount(sheets.MovementsTable) - before; got != 2 {
		t.Fatalf("medium reads after TTL = %d, want 2", got)
	}
}

func TestReadOverlappingWriteIsNotCached(t *testing.T) {
	ctx := context.Background()
	mem := newStallingMedium()
	s, _ := newTestStore(t, mem, Options{})
	if _, err := s.ListCategories(ctx, "felipe"); err != nil {
		t.Fatal(err)
	}

	mem.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := s.ListMovements(ctx, "felipe")
		done <- err
	}()
	<-mem.loaded

	if _, err := s.AddMovement(ctx, expense("felipe", "15000", "Almuerzo", "Comida")); err != nil {
		t.Fatalf("AddMovement: %v", err)
	}
	close(mem.release)
	if err := <-done; err != nil {
		t.Fatalf("concurrent ListMovements: %v", err)
	}

	ms, err := s.ListMovements(ctx, "felipe")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 1 {
		t.Fatalf("got %d movements after the write, want 1", len(ms))
	}
}

func TestLongDescriptionAccepted(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, memory.New(), Options{})
	if _, err := s.ListCategories(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	desc := strings.Repeat("x", 500)
	m, err := s.AddMovement(ctx, expense("ana", "10", desc, "Ocio"))
	if err != nil {
		t.Fatalf("AddMovement: %v", err)
	}
	if m.Description != desc {
		t.Errorf("description length = %d, want 500", len(m.Description))
	}
}
