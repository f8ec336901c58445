// Package mongostore implements store.Repository on MongoDB.
//
// The compare-and-set transitions use filtered UpdateOne calls and the
// one-attempt rule is a unique compound index on (exam_id, student_id).
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/store"
)

// Store is the MongoDB implementation of store.Repository.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	exams    *mongo.Collection
	attempts *mongo.Collection
}

var _ store.Repository = (*Store)(nil)

// Open connects to uri, selects database dbName and ensures indexes exist.
func Open(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client:   client,
		users:    db.Collection("users"),
		exams:    db.Collection("exam_requests"),
		attempts: db.Collection("attempts"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	slog.Info("connected to mongodb", "database", dbName)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return err
	}
	if _, err := s.exams.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "institute_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}); err != nil {
		return err
	}
	if _, err := s.attempts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "exam_id", Value: 1}, {Key: "student_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "student_id", Value: 1}}},
	}); err != nil {
		return err
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateUser inserts a new user. An empty ID is filled in.
func (s *Store) CreateUser(ctx context.Context, u model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Email = strings.ToLower(u.Email)
	if _, err := s.users.InsertOne(ctx, toUserDoc(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		slog.Error("failed to create user", "email", u.Email, "error", err)
		return err
	}
	slog.Info("created user", "id", u.ID, "email", u.Email, "role", u.Role)
	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var d userDoc
	err := s.users.FindOne(ctx, filter).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := d.toModel()
	return &u, nil
}

// GetUserByID returns a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

// GetUserByEmail returns a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(email)})
}

// UserCount returns the number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{})
	return int(n), err
}

// CreateExam inserts a new exam request.
func (s *Store) CreateExam(ctx context.Context, e *model.ExamRequest) error {
	if _, err := s.exams.InsertOne(ctx, toExamDoc(e)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		slog.Error("failed to create exam request", "id", e.ID, "error", err)
		return err
	}
	return nil
}

// GetExam returns an exam request by ID, or store.ErrNotFound.
func (s *Store) GetExam(ctx context.Context, id string) (*model.ExamRequest, error) {
	var d examDoc
	err := s.exams.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e := d.toModel()
	return &e, nil
}

// ListExams returns exam requests matching the filter, newest first.
func (s *Store) ListExams(ctx context.Context, f model.ExamFilter) ([]model.ExamRequest, error) {
	filter := bson.M{}
	if f.InstituteID != "" {
		filter["institute_id"] = f.InstituteID
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	if f.NotAttemptedBy != "" {
		attempted, err := s.attempts.Distinct(ctx, "exam_id", bson.M{"student_id": f.NotAttemptedBy})
		if err != nil {
			return nil, err
		}
		if len(attempted) > 0 {
			filter["_id"] = bson.M{"$nin": attempted}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := s.exams.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []examDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	exams := make([]model.ExamRequest, len(docs))
	for i, d := range docs {
		exams[i] = d.toModel()
	}
	return exams, nil
}

// CountExamsByStatus returns the number of exam requests per status.
func (s *Store) CountExamsByStatus(ctx context.Context) (map[model.ExamStatus]int, error) {
	cur, err := s.exams.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	})
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	counts := make(map[model.ExamStatus]int, len(rows))
	for _, r := range rows {
		counts[model.ExamStatus(r.Status)] = r.Count
	}
	return counts, nil
}

// DecideExam applies a review to a pending exam with a compare-and-set on status.
func (s *Store) DecideExam(ctx context.Context, id string, r model.Review) error {
	set := bson.M{
		"status":        string(r.Status),
		"admin_comment": r.AdminComment,
		"reviewed_by":   r.ReviewedBy,
		"reviewed_at":   r.ReviewedAt.UTC(),
		"updated_at":    time.Now().UTC(),
	}
	switch r.Status {
	case model.ExamApproved:
		if r.PublishAddress == "" || r.PublishKey == "" {
			return fmt.Errorf("approval requires publish address and key")
		}
		set["publish_address"] = r.PublishAddress
		set["publish_key"] = r.PublishKey
	case model.ExamRejected:
	default:
		return fmt.Errorf("invalid review status %q", r.Status)
	}

	res, err := s.exams.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(model.ExamPending)},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if _, err := s.GetExam(ctx, id); err != nil {
		return err
	}
	return store.ErrConflict
}

// ReleaseResults sets results_released on an approved exam exactly once.
func (s *Store) ReleaseResults(ctx context.Context, id string) (bool, error) {
	res, err := s.exams.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(model.ExamApproved), "results_released": false},
		bson.M{"$set": bson.M{"results_released": true, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}
	e, err := s.GetExam(ctx, id)
	if err != nil {
		return false, err
	}
	if e.Status != model.ExamApproved {
		return false, store.ErrConflict
	}
	return false, nil
}

// CreateAttempt records a scored attempt; a second attempt returns store.ErrDuplicate.
func (s *Store) CreateAttempt(ctx context.Context, a *model.AttemptRecord) error {
	if _, err := s.attempts.InsertOne(ctx, toAttemptDoc(a)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		slog.Error("failed to create attempt", "exam_id", a.ExamID, "student_id", a.StudentID, "error", err)
		return err
	}
	return nil
}

// GetAttempt returns the student's attempt for an exam, or nil if none.
func (s *Store) GetAttempt(ctx context.Context, examID, studentID string) (*model.AttemptRecord, error) {
	var d attemptDoc
	err := s.attempts.FindOne(ctx, bson.M{"exam_id": examID, "student_id": studentID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a, err := d.toModel()
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAttemptsByExam returns all attempts for an exam in submission order.
func (s *Store) ListAttemptsByExam(ctx context.Context, examID string) ([]model.AttemptRecord, error) {
	return s.listAttempts(ctx, bson.M{"exam_id": examID}, 1)
}

// ListAttemptsByStudent returns all attempts of a student, newest first.
func (s *Store) ListAttemptsByStudent(ctx context.Context, studentID string) ([]model.AttemptRecord, error) {
	return s.listAttempts(ctx, bson.M{"student_id": studentID}, -1)
}

func (s *Store) listAttempts(ctx context.Context, filter bson.M, order int) ([]model.AttemptRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: order}, {Key: "_id", Value: 1}})
	cur, err := s.attempts.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []attemptDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	attempts := make([]model.AttemptRecord, 0, len(docs))
	for _, d := range docs {
		a, err := d.toModel()
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
