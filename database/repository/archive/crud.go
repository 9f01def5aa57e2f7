package archiveRepo

import (
	"context"
	"fmt"
	"time"

	"parley/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// archivedRequest is the stored document: the request plus when it was archived.
type archivedRequest struct {
	models.Request `bson:",inline"`
	DurationMins   int       `bson:"durationMinutes"`
	ArchivedAt     time.Time `bson:"archivedAt"`
}

func toDocument(req *models.Request, at time.Time) archivedRequest {
	return archivedRequest{
		Request:      *req.Clone(),
		DurationMins: int(req.Duration.Minutes()),
		ArchivedAt:   at,
	}
}

// Save upserts the request under its correlation token.
func (r *mongoArchiveRepo) Save(ctx context.Context, req *models.Request) error {
	doc := toDocument(req, r.now())
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": req.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to archive request %s: %w", req.ID, err)
	}
	return nil
}
