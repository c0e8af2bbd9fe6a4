// Package mongostore implements a MongoDB-backed checkpoint.Store: every
// Save inserts one document into an append-only collection, and Latest
// finds the highest-cycle document recorded for a run.
package mongostore

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowstate/orchestrator/core/blackboard"
	"github.com/flowstate/orchestrator/core/checkpoint"
	"github.com/flowstate/orchestrator/core/concept"
	"github.com/flowstate/orchestrator/core/dispatch"
	"github.com/flowstate/orchestrator/core/inference"
	"github.com/flowstate/orchestrator/core/tracker"
)

const (
	defaultCollection = "checkpoints"
	defaultTimeout    = 5 * time.Second
)

// Options configures the Mongo-backed checkpoint store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements checkpoint.Store by delegating to a Mongo collection.
type Store struct {
	coll    collection
	timeout time.Duration
}

// New constructs a Store, creating the collection's supporting index if
// it does not already exist.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	wrapper := mongoCollection{coll: mcoll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newStoreWithCollection(wrapper, timeout)
}

func newStoreWithCollection(coll collection, timeout time.Duration) (*Store, error) {
	if coll == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

// Save implements checkpoint.Store. Checkpoints are append-only (§4.8.1):
// every call inserts a new document rather than updating a prior one.
func (s *Store) Save(ctx context.Context, snap checkpoint.Snapshot) error {
	if snap.RunID == "" {
		return errors.New("run_id is required")
	}
	doc := fromSnapshot(snap)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.InsertOne(ctx, doc)
	return err
}

// Latest implements checkpoint.Store, returning the highest-cycle document
// recorded for runID.
func (s *Store) Latest(ctx context.Context, runID string) (checkpoint.Snapshot, bool, error) {
	if runID == "" {
		return checkpoint.Snapshot{}, false, errors.New("run_id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"run_id": runID}
	opts := options.FindOne().SetSort(bson.D{{Key: "cycle", Value: -1}})
	var doc checkpointDocument
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return checkpoint.Snapshot{}, false, nil
		}
		return checkpoint.Snapshot{}, false, err
	}
	return doc.toSnapshot(), true, nil
}

// ListRuns implements checkpoint.Lister by scanning every checkpoint
// document recorded so far and aggregating them by run_id. The append-only
// log has no separate runs collection (§6.4 calls it optional), so this
// is a full collection scan rather than an indexed lookup.
func (s *Store) ListRuns(ctx context.Context) ([]checkpoint.RunSummary, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var docs []checkpointDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	byRun := make(map[string]*checkpoint.RunSummary)
	for _, doc := range docs {
		summary, ok := byRun[doc.RunID]
		if !ok {
			summary = &checkpoint.RunSummary{RunID: doc.RunID, FirstTimestamp: doc.Timestamp, LastTimestamp: doc.Timestamp}
			byRun[doc.RunID] = summary
		}
		if doc.Timestamp.Before(summary.FirstTimestamp) {
			summary.FirstTimestamp = doc.Timestamp
		}
		if doc.Timestamp.After(summary.LastTimestamp) {
			summary.LastTimestamp = doc.Timestamp
		}
		if doc.Cycle > summary.MaxCycle {
			summary.MaxCycle = doc.Cycle
		}
		summary.ExecutionCount += doc.InferenceCount
	}

	summaries := make([]checkpoint.RunSummary, 0, len(byRun))
	for _, summary := range byRun {
		summaries = append(summaries, *summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastTimestamp.After(summaries[j].LastTimestamp)
	})
	return summaries, nil
}

// ListCheckpoints implements checkpoint.Lister, returning every checkpoint
// recorded for runID ordered oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, runID string) ([]checkpoint.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"run_id": runID}, options.Find().SetSort(bson.D{{Key: "cycle", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []checkpointDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	snaps := make([]checkpoint.Snapshot, 0, len(docs))
	for _, doc := range docs {
		snaps = append(snaps, doc.toSnapshot())
	}
	return snaps, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}, {Key: "cycle", Value: 1}, {Key: "inference_count", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

type checkpointDocument struct {
	RunID          string            `bson:"run_id"`
	Cycle          int               `bson:"cycle"`
	InferenceCount int               `bson:"inference_count"`
	Timestamp      time.Time         `bson:"timestamp"`
	Concepts       []conceptDocument `bson:"concepts"`
	Items          []itemDocument    `bson:"items"`
	Tracker        trackerDocument   `bson:"tracker"`
	Workspace      map[string]any    `bson:"workspace,omitempty"`
}

type conceptDocument struct {
	Name            string   `bson:"name"`
	Type            string   `bson:"type"`
	Status          string   `bson:"status"`
	ReferenceData   []any    `bson:"reference_data,omitempty"`
	ReferenceAxes   []string `bson:"reference_axes,omitempty"`
	ReferenceShape  []int    `bson:"reference_shape,omitempty"`
	IsGroundConcept bool     `bson:"is_ground_concept"`
	IsFinalConcept  bool     `bson:"is_final_concept"`
}

type itemDocument struct {
	FlowIndex      string `bson:"flow_index"`
	Status         string `bson:"status"`
	ExecutionCount int    `bson:"execution_count"`
	Result         string `bson:"result,omitempty"`
}

type attemptDocument struct {
	ID                 string    `bson:"id"`
	RunID              string    `bson:"run_id"`
	Cycle              int       `bson:"cycle"`
	FlowIndex          string    `bson:"flow_index"`
	SequenceKind       string    `bson:"sequence_kind"`
	Status             string    `bson:"status"`
	ConceptToInferName string    `bson:"concept_to_infer_name"`
	Timestamp          time.Time `bson:"timestamp"`
}

type trackerDocument struct {
	CycleCount           int               `bson:"cycle_count"`
	TotalExecutions      int               `bson:"total_executions"`
	SuccessfulExecutions int               `bson:"successful_executions"`
	RetryCount           int               `bson:"retry_count"`
	CompletionOrder      []string          `bson:"completion_order,omitempty"`
	ExecutionHistory     []attemptDocument `bson:"execution_history,omitempty"`
}

func fromSnapshot(snap checkpoint.Snapshot) checkpointDocument {
	concepts := make([]conceptDocument, 0, len(snap.Concepts))
	for _, c := range snap.Concepts {
		concepts = append(concepts, conceptDocument{
			Name:            c.Name,
			Type:            string(c.Type),
			Status:          string(c.Status),
			ReferenceData:   c.ReferenceData,
			ReferenceAxes:   c.ReferenceAxes,
			ReferenceShape:  c.ReferenceShape,
			IsGroundConcept: c.IsGroundConcept,
			IsFinalConcept:  c.IsFinalConcept,
		})
	}
	items := make([]itemDocument, 0, len(snap.Items))
	for _, it := range snap.Items {
		items = append(items, itemDocument{
			FlowIndex:      it.FlowIndex,
			Status:         string(it.Status),
			ExecutionCount: it.ExecutionCount,
			Result:         it.Result,
		})
	}
	history := make([]attemptDocument, 0, len(snap.Tracker.ExecutionHistory))
	for _, a := range snap.Tracker.ExecutionHistory {
		if a == nil {
			continue
		}
		history = append(history, attemptDocument{
			ID:                 a.ID,
			RunID:              a.RunID,
			Cycle:              a.Cycle,
			FlowIndex:          a.FlowIndex,
			SequenceKind:       string(a.SequenceKind),
			Status:             string(a.Status),
			ConceptToInferName: a.ConceptToInferName,
			Timestamp:          a.Timestamp,
		})
	}
	return checkpointDocument{
		RunID:          snap.RunID,
		Cycle:          snap.Cycle,
		InferenceCount: snap.InferenceCount,
		Timestamp:      snap.Timestamp,
		Concepts:       concepts,
		Items:          items,
		Workspace:      snap.Workspace,
		Tracker: trackerDocument{
			CycleCount:           snap.Tracker.CycleCount,
			TotalExecutions:      snap.Tracker.TotalExecutions,
			SuccessfulExecutions: snap.Tracker.SuccessfulExecutions,
			RetryCount:           snap.Tracker.RetryCount,
			CompletionOrder:      snap.Tracker.CompletionOrder,
			ExecutionHistory:     history,
		},
	}
}

func (doc checkpointDocument) toSnapshot() checkpoint.Snapshot {
	concepts := make([]checkpoint.ConceptRecord, 0, len(doc.Concepts))
	for _, c := range doc.Concepts {
		concepts = append(concepts, checkpoint.ConceptRecord{
			Name:            c.Name,
			Type:            conceptTypeOf(c.Type),
			Status:          blackboardStatusOf(c.Status),
			ReferenceData:   c.ReferenceData,
			ReferenceAxes:   c.ReferenceAxes,
			ReferenceShape:  c.ReferenceShape,
			IsGroundConcept: c.IsGroundConcept,
			IsFinalConcept:  c.IsFinalConcept,
		})
	}
	items := make([]checkpoint.ItemRecord, 0, len(doc.Items))
	for _, it := range doc.Items {
		items = append(items, checkpoint.ItemRecord{
			FlowIndex:      it.FlowIndex,
			Status:         itemStatusOf(it.Status),
			ExecutionCount: it.ExecutionCount,
			Result:         it.Result,
		})
	}
	history := make([]*tracker.Attempt, 0, len(doc.Tracker.ExecutionHistory))
	for _, a := range doc.Tracker.ExecutionHistory {
		history = append(history, &tracker.Attempt{
			ID:                 a.ID,
			RunID:              a.RunID,
			Cycle:              a.Cycle,
			FlowIndex:          a.FlowIndex,
			SequenceKind:       sequenceOf(a.SequenceKind),
			Status:             statusOf(a.Status),
			ConceptToInferName: a.ConceptToInferName,
			Timestamp:          a.Timestamp,
		})
	}
	return checkpoint.Snapshot{
		RunID:          doc.RunID,
		Cycle:          doc.Cycle,
		InferenceCount: doc.InferenceCount,
		Timestamp:      doc.Timestamp,
		Concepts:       concepts,
		Items:          items,
		Workspace:      doc.Workspace,
		Tracker: tracker.Snapshot{
			CycleCount:           doc.Tracker.CycleCount,
			TotalExecutions:      doc.Tracker.TotalExecutions,
			SuccessfulExecutions: doc.Tracker.SuccessfulExecutions,
			RetryCount:           doc.Tracker.RetryCount,
			CompletionOrder:      doc.Tracker.CompletionOrder,
			ExecutionHistory:     history,
		},
	}
}

func conceptTypeOf(s string) concept.Type                 { return concept.Type(s) }
func blackboardStatusOf(s string) blackboard.ConceptStatus { return blackboard.ConceptStatus(s) }
func itemStatusOf(s string) blackboard.ItemStatus          { return blackboard.ItemStatus(s) }
func sequenceOf(s string) inference.Sequence               { return inference.Sequence(s) }
func statusOf(s string) dispatch.Status                    { return dispatch.Status(s) }

type collection interface {
	InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	Indexes() indexView
}

// cursor is the subset of *mongodriver.Cursor ListRuns/ListCheckpoints need.
type cursor interface {
	All(ctx context.Context, results any) error
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, doc any) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, doc)
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) All(ctx context.Context, results any) error {
	return c.cur.All(ctx, results)
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
