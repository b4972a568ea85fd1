package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Config holds configuration for a DynamoDB-backed store.
type Config struct {
	// ConnectionString locates the backend, e.g.
	// "Endpoint=http://localhost:8000;Region=us-east-1;AccessKeyId=x;SecretAccessKey=y".
	// See ParseConnectionString.
	ConnectionString string

	// Database names the catalog table that records the containers.
	Database string

	// Container is the document table, created as "<Database>.<Container>".
	Container string

	// PartitionPathHint is the document path the partition key is read from.
	// Informational: it is recorded in the catalog entry of the container.
	PartitionPathHint string

	// TableWaitTimeout bounds how long CreateStoreIfNotExists waits for a new
	// table to become active.
	// Default: 2 minutes
	TableWaitTimeout time.Duration

	// PageSize is the Limit sent with every Scan, Query and ExecuteStatement
	// page. Zero leaves paging to the backend.
	PageSize int32
}

// DefaultConfig returns a Config with defaults filled in.
func DefaultConfig() Config {
	return Config{
		TableWaitTimeout: 2 * time.Minute,
	}
}

// validate fills defaults and rejects configurations that can never work.
func (c *Config) validate() error {
	if c.TableWaitTimeout <= 0 {
		c.TableWaitTimeout = 2 * time.Minute
	}
	if c.PageSize < 0 {
		c.PageSize = 0
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("%w: database name is required", ErrInvalidDescription)
	}
	if strings.TrimSpace(c.Container) == "" {
		return fmt.Errorf("%w: container name is required", ErrInvalidDescription)
	}
	return nil
}

// catalogTable is the table recording the containers of the database.
func (c Config) catalogTable() string {
	return c.Database
}

// containerTable is the table holding the documents.
func (c Config) containerTable() string {
	return c.Database + "." + c.Container
}

// ConnectionString is a parsed connection string.
type ConnectionString struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Profile         string
}

// ParseConnectionString parses "Key=Value;Key=Value" pairs. Keys are
// Endpoint, Region, AccessKeyId, SecretAccessKey, SessionToken and Profile,
// matched case-insensitively. Region is required; AccessKeyId and
// SecretAccessKey must be given together; Endpoint must be an absolute http
// or https URL. Every failure wraps ErrConnectionStringInvalid.
func ParseConnectionString(s string) (ConnectionString, error) {
	var cs ConnectionString
	if strings.TrimSpace(s) == "" {
		return cs, fmt.Errorf("%w: empty", ErrConnectionStringInvalid)
	}

	seen := make(map[string]bool)
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return cs, fmt.Errorf("%w: %q is not a key=value pair", ErrConnectionStringInvalid, pair)
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if seen[name] {
			return cs, fmt.Errorf("%w: %q given twice", ErrConnectionStringInvalid, name)
		}
		seen[name] = true

		switch name {
		case "endpoint":
			cs.Endpoint = value
		case "region":
			cs.Region = value
		case "accesskeyid":
			cs.AccessKeyID = value
		case "secretaccesskey":
			cs.SecretAccessKey = value
		case "sessiontoken":
			cs.SessionToken = value
		case "profile":
			cs.Profile = value
		default:
			return cs, fmt.Errorf("%w: unknown key %q", ErrConnectionStringInvalid, name)
		}
	}

	if cs.Region == "" {
		return cs, fmt.Errorf("%w: Region is required", ErrConnectionStringInvalid)
	}
	if (cs.AccessKeyID == "") != (cs.SecretAccessKey == "") {
		return cs, fmt.Errorf("%w: AccessKeyId and SecretAccessKey must be given together", ErrConnectionStringInvalid)
	}
	if cs.Endpoint != "" {
		u, err := url.Parse(cs.Endpoint)
		if err != nil {
			return cs, fmt.Errorf("%w: endpoint: %w", ErrConnectionStringInvalid, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return cs, fmt.Errorf("%w: endpoint %q must be an http or https URL", ErrConnectionStringInvalid, cs.Endpoint)
		}
	}
	return cs, nil
}

// String renders the connection string with secrets redacted.
func (cs ConnectionString) String() string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("Endpoint", cs.Endpoint)
	add("Region", cs.Region)
	add("AccessKeyId", cs.AccessKeyID)
	if cs.SecretAccessKey != "" {
		add("SecretAccessKey", "***")
	}
	if cs.SessionToken != "" {
		add("SessionToken", "***")
	}
	add("Profile", cs.Profile)
	return strings.Join(parts, ";")
}

// ClientFactory opens a DynamoDB client from a connection string.
type ClientFactory func(ctx context.Context, connectionString string) (Client, error)

// NewClient is the default ClientFactory. It loads the shared AWS
// configuration, overridden by the connection string's region, static
// credentials, profile and endpoint.
func NewClient(ctx context.Context, connectionString string) (Client, error) {
	cs, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cs.Region),
	}
	if cs.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cs.Profile))
	}
	if cs.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cs.AccessKeyID, cs.SecretAccessKey, cs.SessionToken),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionStringInvalid, err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if cs.Endpoint != "" {
			o.BaseEndpoint = aws.String(cs.Endpoint)
		}
	}), nil
}
