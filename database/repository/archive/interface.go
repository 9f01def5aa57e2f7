package archiveRepo

import (
	"context"
	"time"

	"parley/database"
	"parley/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// CollectionName is where finished negotiations are kept.
const CollectionName = "negotiations"

// ArchiveRepository is a write-only audit sink for finished negotiations.
type ArchiveRepository interface {
	Save(ctx context.Context, req *models.Request) error
}

type mongoArchiveRepo struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoArchiveRepo returns an ArchiveRepository on the global client.
func NewMongoArchiveRepo() (ArchiveRepository, error) {
	repo := &mongoArchiveRepo{
		coll: database.MongoClient.Database(database.DatabaseName).Collection(CollectionName),
		now:  time.Now,
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}
