package store

import (
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/jacentio/docstore/internal/fingerprint"
)

// Store descriptions are built in stages. Each stage is an immutable value
// whose methods return a new value, so a partially built description can be
// shared and extended safely:
//
//	people, err := store.KeyFields(
//	    store.Document[Person](store.Describe().DynamoDB().
//	        ConnectionString(conn).
//	        Database("app").
//	        Container("people")),
//	    func(p *Person) *string { return &p.LastName },
//	    func(p *Person) *uuid.UUID { return &p.PersonID },
//	).Validator(personRules).Build()
//
// Stages that take type parameters are package functions (Document,
// KeyPaths, KeyFields, KeyID, KeyIDPartitioned, KeyIDField) because Go
// methods cannot introduce them.

type backendKind int

const (
	backendUnset backendKind = iota
	backendMemory
	backendDynamoDB
)

func (k backendKind) String() string {
	switch k {
	case backendMemory:
		return "memory"
	case backendDynamoDB:
		return "dynamodb"
	default:
		return "unset"
	}
}

// backend is the backend half of a description.
type backend struct {
	kind    backendKind
	config  Config
	factory ClientFactory
}

// NeedsBackend is the first stage: choose where documents live.
type NeedsBackend struct{}

// Describe starts a store description.
func Describe() NeedsBackend {
	return NeedsBackend{}
}

// MockInMemory selects the in-memory backend.
func (NeedsBackend) MockInMemory() NeedsDocument {
	return NeedsDocument{b: backend{kind: backendMemory}}
}

// DynamoDB selects the DynamoDB backend.
func (NeedsBackend) DynamoDB() NeedsConnectionString {
	return NeedsConnectionString{b: backend{kind: backendDynamoDB, config: DefaultConfig()}}
}

// NeedsConnectionString is the DynamoDB stage awaiting a connection string.
type NeedsConnectionString struct{ b backend }

// ClientFactory replaces NewClient as the way clients are opened. The
// factory is also used by failure classification.
func (n NeedsConnectionString) ClientFactory(f ClientFactory) NeedsConnectionString {
	n.b.factory = f
	return n
}

// ConnectionString sets the connection string. It is parsed when the client
// is first opened, not here.
func (n NeedsConnectionString) ConnectionString(s string) NeedsDatabase {
	n.b.config.ConnectionString = s
	return NeedsDatabase(n)
}

// NeedsDatabase is the DynamoDB stage awaiting a database name.
type NeedsDatabase struct{ b backend }

// Database names the catalog table.
func (n NeedsDatabase) Database(name string) NeedsContainer {
	n.b.config.Database = name
	return NeedsContainer(n)
}

// NeedsContainer is the DynamoDB stage awaiting a container name.
type NeedsContainer struct{ b backend }

// TableWaitTimeout bounds how long CreateStoreIfNotExists waits for tables.
func (n NeedsContainer) TableWaitTimeout(d time.Duration) NeedsContainer {
	n.b.config.TableWaitTimeout = d
	return n
}

// PageSize sets the page limit of scans, queries and statements.
func (n NeedsContainer) PageSize(size int32) NeedsContainer {
	n.b.config.PageSize = size
	return n
}

// Container names the document table.
func (n NeedsContainer) Container(name string) NeedsDocument {
	n.b.config.Container = name
	return NeedsDocument(n)
}

// NeedsDocument is the stage awaiting a document type; see Document.
type NeedsDocument struct{ b backend }

// options are the settings every document-bound stage carries.
type options[D any] struct {
	codec  Codec[D]
	logger *slog.Logger
	mode   KeyMode
	seed   []D
}

// Document binds the document type. The result builds a singleton store, or
// is narrowed by one of the key binding functions.
func Document[D any](n NeedsDocument) SingletonDescription[D] {
	return SingletonDescription[D]{b: n.b}
}

// SingletonDescription describes a store holding one document under the key
// ("0", "0").
type SingletonDescription[D any] struct {
	b         backend
	opts      options[D]
	validator Validator[string, string, D]
}

// Validator attaches a validator; see SingletonValidatorFuncs.
func (d SingletonDescription[D]) Validator(v Validator[string, string, D]) SingletonDescription[D] {
	d.validator = v
	return d
}

// Codec replaces the default attributevalue codec.
func (d SingletonDescription[D]) Codec(c Codec[D]) SingletonDescription[D] {
	d.opts.codec = c
	return d
}

// Logger sets the store's logger. Default: slog.Default().
func (d SingletonDescription[D]) Logger(l *slog.Logger) SingletonDescription[D] {
	d.opts.logger = l
	return d
}

// Documents seeds the in-memory backend.
func (d SingletonDescription[D]) Documents(docs ...D) SingletonDescription[D] {
	d.opts.seed = append(d.opts.seed[:len(d.opts.seed):len(d.opts.seed)], docs...)
	return d
}

// Build creates the store. No I/O happens until the store is used.
func (d SingletonDescription[D]) Build() (SingletonStore[D], error) {
	inner, err := d.full().Build()
	if err != nil {
		return nil, err
	}
	return NewSingletonStore(inner)
}

func (d SingletonDescription[D]) full() Description[string, string, D] {
	return Description[string, string, D]{
		b:         d.b,
		opts:      d.opts,
		validator: d.validator,
		singleton: true,
	}
}

// Fingerprint identifies the description; see Registry.
func (d SingletonDescription[D]) Fingerprint() string {
	return d.full().Fingerprint()
}

// KeyPaths binds explicit partition and id paths. A blank partition path
// means "/id". PK must be int32, string or uuid.UUID; otherwise Build fails with
// ErrUnsupportedPartitionKeyType.
func KeyPaths[PK comparable, ID comparable, D any](d SingletonDescription[D], partitionPath, idPath string) Description[PK, ID, D] {
	return Description[PK, ID, D]{
		b:             d.b,
		opts:          d.opts,
		partitionPath: partitionPath,
		idPath:        idPath,
		err:           checkPartitionKeyType[PK](),
	}
}

// KeyFields binds the key paths from field accessors such as
// func(p *Person) *string { return &p.LastName }. Accessors must return the
// address of a field of their argument; nested struct fields give nested
// paths.
func KeyFields[PK comparable, ID comparable, D any](d SingletonDescription[D], partition func(*D) *PK, id func(*D) *ID) Description[PK, ID, D] {
	partitionPath, perr := accessorPath(partition)
	idPath, ierr := accessorPath(id)
	desc := KeyPaths[PK, ID](d, partitionPath, idPath)
	if desc.err == nil {
		desc.err = firstErr(perr, ierr)
	}
	return desc
}

// KeyID binds the id path of an id-arity store. Documents are partitioned by
// the canonical string of their id.
func KeyID[ID comparable, D any](d SingletonDescription[D], idPath string) IDDescription[ID, D] {
	return IDDescription[ID, D]{inner: KeyPaths[string, ID](d, defaultPartitionPath, idPath)}
}

// KeyIDPartitioned is KeyID with the id path doubling as the partition path.
func KeyIDPartitioned[ID comparable, D any](d SingletonDescription[D], idPath string) IDDescription[ID, D] {
	return IDDescription[ID, D]{inner: KeyPaths[string, ID](d, idPath, idPath)}
}

// KeyIDField is KeyID with the id path taken from a field accessor.
func KeyIDField[ID comparable, D any](d SingletonDescription[D], id func(*D) *ID) IDDescription[ID, D] {
	idPath, err := accessorPath(id)
	desc := KeyID[ID](d, idPath)
	if err != nil {
		desc.inner.err = err
	}
	return desc
}

// Description describes a full-arity store.
type Description[PK comparable, ID comparable, D any] struct {
	b             backend
	opts          options[D]
	partitionPath string
	idPath        string
	validator     Validator[PK, ID, D]
	singleton     bool
	err           error
}

// Validator attaches a validator; see ValidatorFuncs and StructValidator.
func (d Description[PK, ID, D]) Validator(v Validator[PK, ID, D]) Description[PK, ID, D] {
	d.validator = v
	return d
}

// Codec replaces the default attributevalue codec.
func (d Description[PK, ID, D]) Codec(c Codec[D]) Description[PK, ID, D] {
	d.opts.codec = c
	return d
}

// Logger sets the store's logger. Default: slog.Default().
func (d Description[PK, ID, D]) Logger(l *slog.Logger) Description[PK, ID, D] {
	d.opts.logger = l
	return d
}

// StrictKeys makes key derivation fail with ErrKeyPathNotFound instead of
// keying documents with missing key fields under "0".
func (d Description[PK, ID, D]) StrictKeys() Description[PK, ID, D] {
	d.opts.mode = KeyModeStrict
	return d
}

// Documents seeds the in-memory backend. DynamoDB descriptions with seed
// documents fail to build.
func (d Description[PK, ID, D]) Documents(docs ...D) Description[PK, ID, D] {
	d.opts.seed = append(d.opts.seed[:len(d.opts.seed):len(d.opts.seed)], docs...)
	return d
}

// Err returns the error Build would fail with before touching the backend.
func (d Description[PK, ID, D]) Err() error {
	if d.err != nil {
		return d.err
	}
	switch d.b.kind {
	case backendMemory:
		return nil
	case backendDynamoDB:
		if len(d.opts.seed) > 0 {
			return fmt.Errorf("%w: seed documents require the in-memory backend", ErrInvalidDescription)
		}
		cfg := d.b.config
		return cfg.validate()
	default:
		return fmt.Errorf("%w: no backend selected", ErrInvalidDescription)
	}
}

// Build creates the store. No I/O happens until the store is used.
func (d Description[PK, ID, D]) Build() (Store[PK, ID, D], error) {
	if err := d.Err(); err != nil {
		return nil, err
	}

	s := schema[PK, ID, D]{
		codec:         d.opts.codec,
		partitionPath: d.partitionPath,
		idPath:        d.idPath,
		mode:          d.opts.mode,
		singleton:     d.singleton,
		validator:     d.validator,
		logger:        d.opts.logger,
	}

	if d.b.kind == backendMemory {
		m, err := newMemoryStore(s, d.opts.seed)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	cfg := d.b.config
	if cfg.PartitionPathHint == "" {
		cfg.PartitionPathHint = d.effectivePartitionPath()
	}
	ds, err := newDynamoStore(s, cfg, d.b.factory)
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func (d Description[PK, ID, D]) effectivePartitionPath() string {
	if strings.TrimSpace(d.partitionPath) == "" {
		return defaultPartitionPath
	}
	return d.partitionPath
}

// Fingerprint identifies the description. Equal descriptions share a
// fingerprint; validators, codecs, loggers and client factories are compared
// by identity.
func (d Description[PK, ID, D]) Fingerprint() string {
	cfg := d.b.config
	var validator any
	if d.validator != nil {
		validator = d.validator
	}
	var codec any
	if d.opts.codec != nil {
		codec = d.opts.codec
	}
	var factory any
	if d.b.factory != nil {
		factory = d.b.factory
	}
	return fingerprint.Of(
		d.b.kind.String(),
		cfg.ConnectionString,
		cfg.Database,
		cfg.Container,
		cfg.TableWaitTimeout.String(),
		fmt.Sprint(cfg.PageSize),
		reflect.TypeFor[PK]().String(),
		reflect.TypeFor[ID]().String(),
		reflect.TypeFor[D]().String(),
		d.partitionPath,
		d.idPath,
		fmt.Sprint(d.singleton),
		d.opts.mode.String(),
		fingerprint.Identity(validator),
		fingerprint.Identity(codec),
		fingerprint.Identity(d.opts.logger),
		fingerprint.Identity(factory),
		fingerprint.Values(d.opts.seed),
	)
}

// IDDescription describes an id-arity store.
type IDDescription[ID comparable, D any] struct {
	inner Description[string, ID, D]
}

// Validator attaches a validator; see IDValidatorFuncs.
func (d IDDescription[ID, D]) Validator(v Validator[string, ID, D]) IDDescription[ID, D] {
	d.inner = d.inner.Validator(v)
	return d
}

// Codec replaces the default attributevalue codec.
func (d IDDescription[ID, D]) Codec(c Codec[D]) IDDescription[ID, D] {
	d.inner = d.inner.Codec(c)
	return d
}

// Logger sets the store's logger. Default: slog.Default().
func (d IDDescription[ID, D]) Logger(l *slog.Logger) IDDescription[ID, D] {
	d.inner = d.inner.Logger(l)
	return d
}

// StrictKeys makes key derivation fail on missing key fields.
func (d IDDescription[ID, D]) StrictKeys() IDDescription[ID, D] {
	d.inner = d.inner.StrictKeys()
	return d
}

// Documents seeds the in-memory backend.
func (d IDDescription[ID, D]) Documents(docs ...D) IDDescription[ID, D] {
	d.inner = d.inner.Documents(docs...)
	return d
}

// Err returns the error Build would fail with before touching the backend.
func (d IDDescription[ID, D]) Err() error {
	return d.inner.Err()
}

// Build creates the store. No I/O happens until the store is used.
func (d IDDescription[ID, D]) Build() (IDStore[ID, D], error) {
	inner, err := d.inner.Build()
	if err != nil {
		return nil, err
	}
	return NewIDStore(inner), nil
}

// Fingerprint identifies the description; see Registry.
func (d IDDescription[ID, D]) Fingerprint() string {
	return fingerprint.Of("id", d.inner.Fingerprint())
}

// accessorPath finds the field whose address accessor returns and renders
// its path, honoring dynamodbav tag names.
func accessorPath[D, F any](accessor func(*D) *F) (string, error) {
	if accessor == nil {
		return "", fmt.Errorf("%w: nil field accessor", ErrInvalidDescription)
	}
	var doc D
	root := reflect.ValueOf(&doc).Elem()
	if root.Kind() != reflect.Struct {
		return "", fmt.Errorf("%w: field accessors need a struct document, got %s", ErrInvalidDescription, root.Type())
	}

	target := accessor(&doc)
	if target == nil {
		return "", fmt.Errorf("%w: field accessor returned nil", ErrInvalidDescription)
	}

	segments, ok := findField(root, reflect.ValueOf(target).Pointer(), reflect.TypeFor[F]())
	if !ok {
		return "", fmt.Errorf("%w: field accessor does not address a field of %s", ErrInvalidDescription, root.Type())
	}
	return "/" + strings.Join(segments, "/"), nil
}

func findField(v reflect.Value, addr uintptr, want reflect.Type) ([]string, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := fieldName(sf)
		if name == "" {
			continue
		}
		fv := v.Field(i)
		if fv.Addr().Pointer() == addr && sf.Type == want {
			return []string{name}, true
		}
		if sf.Type.Kind() == reflect.Struct {
			if rest, ok := findField(fv, addr, want); ok {
				if sf.Anonymous && sf.Tag.Get("dynamodbav") == "" {
					return rest, true
				}
				return append([]string{name}, rest...), true
			}
		}
	}
	return nil, false
}

// fieldName is the attribute name of a struct field, or "" when the field
// is not stored.
func fieldName(sf reflect.StructField) string {
	name := strings.SplitN(sf.Tag.Get("dynamodbav"), ",", 2)[0]
	switch name {
	case "-":
		return ""
	case "":
		return sf.Name
	}
	return name
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
