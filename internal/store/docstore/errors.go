package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/teodevgroup/teo-sub005/internal/apperr"
)

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return apperr.UniqueConstraintViolation(err)
	}
	return apperr.UnknownDatabaseWriteError(err)
}
