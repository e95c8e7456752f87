package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type documentKey struct {
	accountID string
	folder    string
	uid       uint32
}

// maxDocumentAttempts bounds how often one document is retried on its own
// before it is dropped.
const maxDocumentAttempts = 3

type pendingDocument struct {
	doc      models.SearchDocument
	attempts int
}

var _ interfaces.MessageSearchIndex = (*Index)(nil)

// Index is a table-backed MessageSearchIndex. Added messages stay in memory
// until Commit writes them in one transaction.
type Index struct {
	db  repository.DBProvider
	cfg *config.SearchConfig
	log logger.Logger

	mu      sync.Mutex
	pending map[documentKey]pendingDocument
	closed  bool

	// serializes commits so a failed batch is requeued before the next one starts
	commitMu sync.Mutex
}

func NewIndex(db repository.DBProvider, cfg *config.SearchConfig, log logger.Logger) *Index {
	if cfg == nil {
		cfg = &config.SearchConfig{Enabled: true}
	}
	return &Index{
		db:      db,
		cfg:     cfg,
		log:     log,
		pending: make(map[documentKey]pendingDocument),
	}
}

func (i *Index) AddMessage(ctx context.Context, message *models.Message) error {
	if message == nil {
		return nil
	}

	doc := models.SearchDocument{
		AccountID:   message.AccountID,
		Folder:      message.Folder,
		UID:         message.UID,
		MessageID:   utils.Truncate(message.MessageID, models.MaxMessageIDLength),
		Subject:     utils.Truncate(message.Subject, models.MaxSubjectLength),
		FromAddress: utils.Truncate(strings.ToLower(message.FromAddress), models.MaxAddressLength),
		Body:        utils.Truncate(message.BodyText, i.cfg.MaxBodySize),
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return mserrors.ErrIndexClosed
	}
	i.pending[documentKey{doc.AccountID, doc.Folder, doc.UID}] = pendingDocument{doc: doc}
	return nil
}

// Pending reports how many documents wait for the next commit.
func (i *Index) Pending() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.pending)
}

func (i *Index) Commit(ctx context.Context) error {
	i.commitMu.Lock()
	defer i.commitMu.Unlock()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return mserrors.ErrIndexClosed
	}
	if len(i.pending) == 0 {
		i.mu.Unlock()
		return nil
	}
	batch := i.pending
	i.pending = make(map[documentKey]pendingDocument)
	i.mu.Unlock()

	span, ctx := opentracing.StartSpanFromContext(ctx, "SearchIndex.Commit")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.LogKV("documents", len(batch))

	db, err := i.db.DB()
	if err != nil {
		i.requeue(batch)
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to commit search index")
	}

	now := utils.Now()
	docs := make([]models.SearchDocument, 0, len(batch))
	for _, p := range batch {
		p.doc.IndexedAt = now
		docs = append(docs, p.doc)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertDocuments(tx).CreateInBatches(docs, 100).Error
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		i.requeue(batch)
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to commit search index")
	}

	// one bad document must not hold back the rest: write them one by one
	retry, failed := i.writeEach(ctx, db, batch, now)
	if failed == 0 {
		return nil
	}
	i.requeue(retry)
	tracing.TraceErr(span, err)
	return errors.Wrapf(err, "failed to commit %d of %d search documents", failed, len(batch))
}

func upsertDocuments(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder"}, {Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"message_id", "subject", "from_address", "body", "indexed_at"}),
	})
}

// writeEach stores documents individually. It returns the ones still worth
// retrying and how many failed. A document that keeps failing is dropped.
// When nothing at all could be written the store itself is failing, so the
// attempt is not counted against any document.
func (i *Index) writeEach(ctx context.Context, db *gorm.DB, batch map[documentKey]pendingDocument, now time.Time) (map[documentKey]pendingDocument, int) {
	retry := make(map[documentKey]pendingDocument)
	for key, p := range batch {
		doc := p.doc
		doc.IndexedAt = now
		if err := upsertDocuments(db.WithContext(ctx)).Create(&doc).Error; err != nil {
			p.attempts++
			retry[key] = p
			i.log.Warnf("Could not index message %d in %s/%s: %v", key.uid, key.accountID, key.folder, err)
		}
	}
	failed := len(retry)
	if failed == len(batch) {
		return batch, failed
	}
	for key, p := range retry {
		if p.attempts >= maxDocumentAttempts {
			i.log.Errorf("Dropping search document for message %d in %s/%s after %d attempts", key.uid, key.accountID, key.folder, p.attempts)
			delete(retry, key)
		}
	}
	return retry, failed
}

// requeue puts failed documents back unless a newer version of the same
// document arrived in the meantime.
func (i *Index) requeue(batch map[documentKey]pendingDocument) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.pending == nil {
		return
	}
	for key, p := range batch {
		if _, ok := i.pending[key]; !ok {
			i.pending[key] = p
		}
	}
}

func (i *Index) RemoveMessage(ctx context.Context, accountID, folder string, uid uint32) error {
	return i.remove(ctx, accountID, folder, &uid)
}

func (i *Index) RemoveFolder(ctx context.Context, accountID, folder string) error {
	return i.remove(ctx, accountID, folder, nil)
}

// remove holds commitMu so a commit already in flight cannot write the
// removed documents back afterwards.
func (i *Index) remove(ctx context.Context, accountID, folder string, uid *uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SearchIndex.Remove")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folder)

	i.commitMu.Lock()
	defer i.commitMu.Unlock()

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return mserrors.ErrIndexClosed
	}
	for key := range i.pending {
		if key.accountID == accountID && key.folder == folder && (uid == nil || key.uid == *uid) {
			delete(i.pending, key)
		}
	}
	i.mu.Unlock()

	db, err := i.db.DB()
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tx := db.WithContext(ctx).Where("account_id = ? AND folder = ?", accountID, folder)
	if uid != nil {
		tx = tx.Where("uid = ?", *uid)
	}
	if err := tx.Delete(&models.SearchDocument{}).Error; err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to remove search documents")
	}
	return nil
}

func (i *Index) Search(ctx context.Context, query interfaces.SearchQuery) ([]models.SearchDocument, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SearchIndex.Search")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, query.AccountID)
	span.LogKV("text", query.Text, "field", string(query.Field))

	i.mu.Lock()
	closed := i.closed
	i.mu.Unlock()
	if closed {
		return nil, mserrors.ErrIndexClosed
	}

	db, err := i.db.DB()
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = i.cfg.ResultLimit
	}
	if limit <= 0 {
		limit = 50
	}

	tx := db.WithContext(ctx).Model(&models.SearchDocument{})
	if query.AccountID != "" {
		tx = tx.Where("account_id = ?", query.AccountID)
	}

	text := strings.TrimSpace(query.Text)
	if text != "" {
		pattern := "%" + strings.ToLower(text) + "%"
		switch query.Field {
		case interfaces.SearchFieldSubject:
			tx = tx.Where("LOWER(subject) LIKE ?", pattern)
		case interfaces.SearchFieldBody:
			tx = tx.Where("LOWER(body) LIKE ?", pattern)
		case interfaces.SearchFieldFrom:
			tx = tx.Where("from_address LIKE ?", pattern)
		default:
			tx = tx.Where("LOWER(subject) LIKE ? OR LOWER(body) LIKE ? OR from_address LIKE ?", pattern, pattern, pattern)
		}
	}

	var docs []models.SearchDocument
	if err := tx.Order("indexed_at DESC, uid DESC").Limit(limit).Find(&docs).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to search messages")
	}
	span.LogKV("results", len(docs))
	return docs, nil
}

// Close flushes what is pending and refuses further use. Calling it again
// does nothing.
func (i *Index) Close() error {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil
	}
	i.mu.Unlock()

	err := i.Commit(context.Background())
	if errors.Is(err, mserrors.ErrStorageNotReady) {
		err = nil
	}

	i.mu.Lock()
	i.closed = true
	dropped := len(i.pending)
	i.pending = nil
	i.mu.Unlock()

	if dropped > 0 {
		i.log.Warnf("Search index closed with %d uncommitted documents", dropped)
	}
	return err
}
