package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// classify turns a backend failure into a connectivity diagnostic.
//
// It reopens a client from the connection string, then probes the catalog
// table and the container table. The first probe that fails decides the
// sentinel: ErrConnectionStringInvalid, ErrHostUnreachable,
// ErrDatabaseNotFound or ErrContainerNotFound. If every probe passes the
// original error is returned unchanged. The result wraps both the sentinel
// and cause.
//
// The probes are best effort: a table created or dropped between probes can
// still produce an imprecise diagnosis.
func (s *DynamoStore[PK, ID, D]) classify(ctx context.Context, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	if errors.Is(cause, ErrPartitionNotSelected) {
		return cause
	}

	d := s.probe(ctx)
	if d == nil {
		return cause
	}

	s.logger.Warn("backend failure classified",
		"diagnosis", d.sentinel,
		"database", s.config.Database,
		"container", s.config.Container,
		"error", cause,
	)
	return fmt.Errorf("%w: %s: %w", d.sentinel, d.detail, cause)
}

type diagnosis struct {
	sentinel error
	detail   string
}

// probe runs the diagnostic sequence and returns the first diagnosis that
// applies, or nil.
func (s *DynamoStore[PK, ID, D]) probe(ctx context.Context) *diagnosis {
	client, err := s.factory(ctx, s.config.ConnectionString)
	if err != nil {
		return &diagnosis{ErrConnectionStringInvalid, err.Error()}
	}

	database := s.config.catalogTable()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(database)}); err != nil {
		switch {
		case isTransportError(err):
			return &diagnosis{ErrHostUnreachable, err.Error()}
		case isTableMissing(err):
			return &diagnosis{ErrDatabaseNotFound, fmt.Sprintf("table %s does not exist", database)}
		default:
			return nil
		}
	}

	container := s.config.containerTable()
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(container)}); err != nil {
		if isTableMissing(err) {
			return &diagnosis{ErrContainerNotFound, fmt.Sprintf("table %s does not exist", container)}
		}
	}
	return nil
}

// isTransportError reports whether err means the request never got a response.
func isTransportError(err error) bool {
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isTableMissing(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
