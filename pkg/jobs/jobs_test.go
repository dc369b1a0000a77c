package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/clause"

	"library_tracking/pkg/database"
	"library_tracking/pkg/loans"
	"library_tracking/pkg/lock"
	"library_tracking/pkg/models"
	"library_tracking/pkg/notify"
	"library_tracking/pkg/queue"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQuery struct {
	members  []models.MemberSummary
	failAt   int
	titles   map[uint][]string
	titleErr error
	scans    int
}

func (q *fakeQuery) OverdueMembers(_ context.Context, _ time.Time) iter.Seq2[models.MemberSummary, error] {
	q.scans++
	return func(yield func(models.MemberSummary, error) bool) {
		for i, m := range q.members {
			if q.failAt > 0 && i == q.failAt {
				yield(models.MemberSummary{}, errors.New("connection reset"))
				return
			}
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (q *fakeQuery) OverdueBookTitles(_ context.Context, memberID uint, _ time.Time) ([]string, error) {
	if q.titleErr != nil {
		return nil, q.titleErr
	}
	return q.titles[memberID], nil
}

func members(n int) []models.MemberSummary {
	out := make([]models.MemberSummary, n)
	for i := range out {
		out[i] = models.MemberSummary{
			ID:    uint(i + 1),
			Name:  fmt.Sprintf("member%d", i+1),
			Email: fmt.Sprintf("member%d@example.com", i+1),
		}
	}
	return out
}

func batchSizes(t *testing.T, s *queue.MemoryStorage) []int {
	t.Helper()
	var sizes []int
	for _, task := range s.All() {
		require.Equal(t, SendBatchOverdueNotification, task.Name)
		assert.Equal(t, ScheduleQueue, task.Queue)

		var p BatchOverduePayload
		require.NoError(t, json.Unmarshal(task.Payload, &p))
		sizes = append(sizes, len(p.Members))
	}
	return sizes
}

func TestScannerDispatchesBatches(t *testing.T) {
	storage := queue.NewMemoryStorage()
	query := &fakeQuery{members: members(120)}
	scanner := NewScanner(query, lock.NewMemoryLocker(), queue.NewEnqueuer(storage), WithScannerLogger(quietLogger()))

	res, err := scanner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ScanResult{Batches: 3, Members: 120}, res)
	assert.Equal(t, []int{50, 50, 20}, batchSizes(t, storage))

	var last BatchOverduePayload
	require.NoError(t, json.Unmarshal(storage.All()[2].Payload, &last))
	assert.Equal(t, models.MemberSummary{ID: 101, Name: "member101", Email: "member101@example.com"}, last.Members[0])
}

func TestScannerExactMultipleAndEmpty(t *testing.T) {
	for _, tt := range []struct {
		members int
		want    []int
	}{
		{0, nil},
		{50, []int{50}},
		{100, []int{50, 50}},
		{1, []int{1}},
	} {
		t.Run(fmt.Sprint(tt.members), func(t *testing.T) {
			storage := queue.NewMemoryStorage()
			scanner := NewScanner(&fakeQuery{members: members(tt.members)}, lock.NewMemoryLocker(),
				queue.NewEnqueuer(storage), WithScannerLogger(quietLogger()))

			res, err := scanner.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.members, res.Members)
			assert.Equal(t, tt.want, batchSizes(t, storage))
		})
	}
}

func TestScannerSkipsWhenLockHeld(t *testing.T) {
	storage := queue.NewMemoryStorage()
	locker := lock.NewMemoryLocker()
	query := &fakeQuery{members: members(10)}

	_, ok, err := locker.TryAcquire(context.Background(), OverdueLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := NewScanner(query, locker, queue.NewEnqueuer(storage), WithScannerLogger(quietLogger())).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Skipped)
	assert.Zero(t, query.scans)
	assert.Empty(t, storage.All())
}

func TestScannerConcurrentRunsProceedOnce(t *testing.T) {
	storage := queue.NewMemoryStorage()
	locker := lock.NewMemoryLocker()
	release := make(chan struct{})
	started := make(chan struct{})

	blocking := &blockingEnqueuer{Enqueuer: queue.NewEnqueuer(storage), started: started, release: release}
	first := NewScanner(&fakeQuery{members: members(5)}, locker, blocking, WithScannerLogger(quietLogger()))
	second := NewScanner(&fakeQuery{members: members(5)}, locker, queue.NewEnqueuer(storage), WithScannerLogger(quietLogger()))

	var wg sync.WaitGroup
	var firstRes ScanResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstRes, _ = first.Run(context.Background())
	}()

	<-started
	res, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(release)
	wg.Wait()
	assert.Equal(t, 1, firstRes.Batches)
	assert.Len(t, storage.All(), 1)
}

type blockingEnqueuer struct {
	*queue.Enqueuer
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingEnqueuer) Enqueue(ctx context.Context, name string, payload any, opts ...queue.EnqueueOption) (*queue.Task, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.Enqueuer.Enqueue(ctx, name, payload, opts...)
}

func TestScannerReleasesLockOnStorageError(t *testing.T) {
	storage := queue.NewMemoryStorage()
	locker := lock.NewMemoryLocker()
	query := &fakeQuery{members: members(120), failAt: 75}

	res, err := NewScanner(query, locker, queue.NewEnqueuer(storage), WithScannerLogger(quietLogger())).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, res.Batches)

	_, ok, err := locker.TryAcquire(context.Background(), OverdueLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, string, any, ...queue.EnqueueOption) (*queue.Task, error) {
	return nil, errors.New("queue unavailable")
}

func TestScannerReleasesLockOnEnqueueError(t *testing.T) {
	locker := lock.NewMemoryLocker()

	_, err := NewScanner(&fakeQuery{members: members(3)}, locker, failingEnqueuer{}, WithScannerLogger(quietLogger())).Run(context.Background())
	require.Error(t, err)

	_, ok, err := locker.TryAcquire(context.Background(), OverdueLockKey, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChunkStopsEarly(t *testing.T) {
	q := &fakeQuery{members: members(10)}
	var got [][]models.MemberSummary
	for batch, err := range chunk(q.OverdueMembers(context.Background(), time.Now()), 3) {
		require.NoError(t, err)
		got = append(got, batch)
		if len(got) == 2 {
			break
		}
	}
	assert.Len(t, got, 2)
	assert.Equal(t, uint(4), got[1][0].ID)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type fakeFinder map[uint]*models.Loan

func (f fakeFinder) GetLoan(_ context.Context, id uint) (*models.Loan, error) {
	if l, ok := f[id]; ok {
		return l, nil
	}
	return nil, loans.ErrLoanNotFound
}

func TestSendBatchOverdue(t *testing.T) {
	notifier := &recordingNotifier{}
	query := &fakeQuery{titles: map[uint][]string{
		1: {"Dune", "Solaris"},
	}}
	n := NewNotifications(query, fakeFinder{}, notifier, quietLogger())

	err := n.SendBatchOverdue(context.Background(), BatchOverduePayload{Members: []models.MemberSummary{
		{ID: 1, Name: "Ada", Email: "ada@example.com"},
		{ID: 2, Name: "NoMail"},
		{ID: 3, Name: "Returned", Email: "returned@example.com"},
	}})
	require.NoError(t, err)

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, notify.Message{
		Subject: OverdueReminderSubject,
		Body:    "Hello Ada,\n\nThese books are overdue:\nDune\nSolaris\n\nPlease return them.",
		To:      "ada@example.com",
	}, notifier.sent[0])

	assert.Equal(t, "returned@example.com", notifier.sent[1].To)
	assert.Equal(t, "Hello Returned,\n\nThese books are overdue:\n\n\nPlease return them.", notifier.sent[1].Body)
}

func TestSendBatchOverduePropagatesFailures(t *testing.T) {
	batch := BatchOverduePayload{Members: []models.MemberSummary{{ID: 1, Name: "Ada", Email: "ada@example.com"}}}

	sendErr := errors.New("smtp down")
	n := NewNotifications(&fakeQuery{}, fakeFinder{}, &recordingNotifier{err: sendErr}, quietLogger())
	assert.ErrorIs(t, n.SendBatchOverdue(context.Background(), batch), sendErr)

	queryErr := errors.New("db down")
	n = NewNotifications(&fakeQuery{titleErr: queryErr}, fakeFinder{}, &recordingNotifier{}, quietLogger())
	assert.ErrorIs(t, n.SendBatchOverdue(context.Background(), batch), queryErr)
}

func TestSendLoanConfirmation(t *testing.T) {
	notifier := &recordingNotifier{}
	finder := fakeFinder{
		7: {
			ID:     7,
			Book:   models.Book{Title: "Dune"},
			Member: models.Member{Username: "ada", Email: "ada@example.com"},
		},
		8: {
			ID:     8,
			Book:   models.Book{Title: "Dune"},
			Member: models.Member{Username: "nomail"},
		},
	}
	n := NewNotifications(&fakeQuery{}, finder, notifier, quietLogger())

	require.NoError(t, n.SendLoanConfirmation(context.Background(), LoanNotificationPayload{LoanID: 7}))
	require.NoError(t, n.SendLoanConfirmation(context.Background(), LoanNotificationPayload{LoanID: 8}))
	require.NoError(t, n.SendLoanConfirmation(context.Background(), LoanNotificationPayload{LoanID: 404}))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.Message{
		Subject: LoanConfirmationSubject,
		Body:    "Hello ada,\n\nYou have successfully loaned \"Dune\".\nPlease return it by the due date.",
		To:      "ada@example.com",
	}, notifier.sent[0])

	n = NewNotifications(&fakeQuery{}, finder, &recordingNotifier{err: errors.New("smtp down")}, quietLogger())
	assert.Error(t, n.SendLoanConfirmation(context.Background(), LoanNotificationPayload{LoanID: 7}))
}

func TestDispatcherEnqueuesLoanID(t *testing.T) {
	storage := queue.NewMemoryStorage()

	require.NoError(t, NewDispatcher(queue.NewEnqueuer(storage)).LoanCreated(context.Background(), 42))

	tasks := storage.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, SendLoanNotification, tasks[0].Name)
	assert.JSONEq(t, `{"loan_id":42}`, string(tasks[0].Payload))
}

func TestOverduePipeline(t *testing.T) {
	ctx := context.Background()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db, Tables()...))

	author := models.Author{FirstName: "Frank", LastName: "Herbert"}
	require.NoError(t, db.Create(&author).Error)
	book := models.Book{Title: "Dune", AuthorID: author.ID, ISBN: "9780441013593", Genre: models.GenreScienceFiction, AvailableCopies: 10}
	require.NoError(t, db.Omit(clause.Associations).Create(&book).Error)

	past := models.Today().AddDate(0, 0, -3)
	for i := 0; i < 3; i++ {
		m := models.Member{Username: fmt.Sprintf("reader%d", i), FirstName: fmt.Sprintf("Reader%d", i), Email: fmt.Sprintf("reader%d@example.com", i)}
		require.NoError(t, db.Create(&m).Error)
		require.NoError(t, db.Omit(clause.Associations).Create(&models.Loan{BookID: book.ID, MemberID: m.ID, DueDate: &past}).Error)
	}

	storage := queue.NewDatabaseStorage(db)
	enqueuer := queue.NewEnqueuer(storage)
	store := loans.NewStore(db)
	notifier := &recordingNotifier{}

	scanner := NewScanner(store, lock.NewDatabaseLocker(db), enqueuer, WithBatchSize(2), WithScannerLogger(quietLogger()))
	notifications := NewNotifications(store, store, notifier, quietLogger())
	worker := queue.NewWorker(storage, Handlers(scanner, notifications),
		queue.WithQueues(queue.DefaultQueue, ScheduleQueue), queue.WithLogger(quietLogger()))

	_, err = enqueuer.Enqueue(ctx, CheckOverdueLoans, nil)
	require.NoError(t, err)

	for {
		processed, err := worker.ProcessNext(ctx)
		require.NoError(t, err)
		if !processed {
			break
		}
	}

	require.Len(t, notifier.sent, 3)
	for i, msg := range notifier.sent {
		assert.Equal(t, OverdueReminderSubject, msg.Subject)
		assert.Equal(t, fmt.Sprintf("reader%d@example.com", i), msg.To)
		assert.Contains(t, msg.Body, fmt.Sprintf("Hello Reader%d,", i))
		assert.Contains(t, msg.Body, "Dune")
	}
}
