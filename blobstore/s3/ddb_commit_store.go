package s3

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/hupe1980/shardex/blobstore"
)

// CurrentName is the pointer blob that DDBCommitStore serves from DynamoDB.
const CurrentName = "CURRENT"

// DefaultLeaseTTL is the lifetime of a writer lease between renewals.
const DefaultLeaseTTL = 30 * time.Second

// Item attributes and condition expressions. The lease shares the
// partition with the revisions under sort key 0.
const (
	attrURI      = "base_uri"
	attrVersion  = "version"
	attrManifest = "manifest_path"
	attrOwner    = "lease_owner"
	attrExpires  = "expires_at"

	leaseVersion = "0"

	condNewRevision = "attribute_not_exists(version)"
	condLeaseFree   = "attribute_not_exists(version) OR expires_at < :now"
	condLeaseOwned  = "lease_owner = :owner"
	keyRevisions    = "base_uri = :uri AND version > :zero"
)

// DDBCommitStore keeps blobs in S3 and the CURRENT pointer in DynamoDB.
//
// Each manifest revision is one item keyed by its revision number, written
// with a conditional put; two writers publishing the same revision cannot
// both succeed. CURRENT resolves to the highest committed revision. The
// store also implements blobstore.Locker with a renewed lease item, so
// writers on different hosts exclude each other.
//
// Table schema:
//   - Partition key: base_uri (string), the S3 prefix of the shard
//   - Sort key: version (number), the manifest revision; 0 holds the lease
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name shardex-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	s3Store   *Store
	ddbClient DDBClient
	tableName string
	baseURI   string
	leaseTTL  time.Duration
	now       func() time.Time
}

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// ErrConcurrentModification is returned when another writer already
// committed the revision. It matches blobstore.ErrConflict.
var ErrConcurrentModification = fmt.Errorf("concurrent modification detected: %w", blobstore.ErrConflict)

// DDBOption configures a DDBCommitStore.
type DDBOption func(*DDBCommitStore)

// WithLeaseTTL sets the writer lease lifetime. Leases are renewed every
// third of it.
func WithLeaseTTL(ttl time.Duration) DDBOption {
	return func(s *DDBCommitStore) {
		if ttl > 0 {
			s.leaseTTL = ttl
		}
	}
}

// NewDDBCommitStore creates an S3+DynamoDB commit store. baseURI, usually
// "s3://bucket/prefix", is the partition key of the shard's items.
func NewDDBCommitStore(s3Store *Store, ddbClient DDBClient, tableName, baseURI string, opts ...DDBOption) *DDBCommitStore {
	s := &DDBCommitStore{
		s3Store:   s3Store,
		ddbClient: ddbClient,
		tableName: tableName,
		baseURI:   baseURI,
		leaseTTL:  DefaultLeaseTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens a blob for reading. CURRENT is answered from DynamoDB.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != CurrentName {
		return s.s3Store.Open(ctx, name)
	}
	rev, manifestPath, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if rev == 0 {
		return nil, blobstore.ErrNotFound
	}
	return blobstore.NewBytesBlob([]byte(manifestPath)), nil
}

// Put writes a blob. Writing CURRENT commits the named manifest revision.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != CurrentName {
		return s.s3Store.Put(ctx, name, data)
	}
	manifestPath := strings.TrimSpace(string(data))
	rev, ok := revisionOf(manifestPath)
	if !ok {
		// Foreign names get the next free revision.
		latest, _, err := s.latest(ctx)
		if err != nil {
			return err
		}
		rev = latest + 1
	}
	return s.commit(ctx, rev, manifestPath)
}

// Create creates a writable blob in S3.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return s.s3Store.Create(ctx, name)
}

// Delete deletes a blob from S3. Committed revisions stay in the table.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	return s.s3Store.Delete(ctx, name)
}

// List lists S3 blobs with prefix. CURRENT is not listed.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.s3Store.List(ctx, prefix)
}

// PutIfAbsent forwards create-only writes to S3.
func (s *DDBCommitStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	return s.s3Store.PutIfAbsent(ctx, name, data)
}

// Ping checks both S3 and the commit table.
func (s *DDBCommitStore) Ping(ctx context.Context) error {
	if err := s.s3Store.Ping(ctx); err != nil {
		return err
	}
	_, _, err := s.latest(ctx)
	return err
}

// Lock takes the shard's writer lease. All lock names of one base URI share
// the lease. An expired lease is taken over.
func (s *DDBCommitStore) Lock(ctx context.Context, name string) (func() error, error) {
	owner := uuid.NewString()
	now := s.now()
	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                s.leaseItem(owner, now),
		ConditionExpression: aws.String(condLeaseFree),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": millis(now),
		},
	})
	if isConditionFailed(err) {
		return nil, blobstore.ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("s3: lock %s: %w", name, err)
	}

	stop, done := make(chan struct{}), make(chan struct{})
	go s.renew(owner, stop, done)

	var (
		once   sync.Once
		relErr error
	)
	return func() error {
		once.Do(func() {
			close(stop)
			<-done
			_, err := s.ddbClient.DeleteItem(context.Background(), &dynamodb.DeleteItemInput{
				TableName:           aws.String(s.tableName),
				Key:                 s.key(leaseVersion),
				ConditionExpression: aws.String(condLeaseOwned),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":owner": &types.AttributeValueMemberS{Value: owner},
				},
			})
			// A lease taken over after expiry is no longer ours to delete.
			if err != nil && !isConditionFailed(err) {
				relErr = fmt.Errorf("s3: unlock %s: %w", name, err)
			}
		})
		return relErr
	}, nil
}

func (s *DDBCommitStore) renew(owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.leaseTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A failed renewal lets the lease lapse; revision commits still
			// reject a competing writer.
			_, _ = s.ddbClient.PutItem(context.Background(), &dynamodb.PutItemInput{
				TableName:           aws.String(s.tableName),
				Item:                s.leaseItem(owner, s.now()),
				ConditionExpression: aws.String(condLeaseOwned),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":owner": &types.AttributeValueMemberS{Value: owner},
				},
			})
		}
	}
}

// latest returns the highest committed revision and its manifest name.
// Revision 0 means nothing was committed.
func (s *DDBCommitStore) latest(ctx context.Context) (uint64, string, error) {
	resp, err := s.ddbClient.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String(keyRevisions),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri":  &types.AttributeValueMemberS{Value: s.baseURI},
			":zero": &types.AttributeValueMemberN{Value: leaseVersion},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", fmt.Errorf("s3: query commit table: %w", err)
	}
	if len(resp.Items) == 0 {
		return 0, "", nil
	}

	item := resp.Items[0]
	versionAttr, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: commit item without version")
	}
	pathAttr, ok := item[attrManifest].(*types.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: commit item without manifest_path")
	}
	rev, err := strconv.ParseUint(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("s3: commit item version %q: %w", versionAttr.Value, err)
	}
	return rev, pathAttr.Value, nil
}

func (s *DDBCommitStore) commit(ctx context.Context, rev uint64, manifestPath string) error {
	item := s.key(strconv.FormatUint(rev, 10))
	item[attrManifest] = &types.AttributeValueMemberS{Value: manifestPath}

	_, err := s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String(condNewRevision),
	})
	if isConditionFailed(err) {
		return ErrConcurrentModification
	}
	if err != nil {
		return fmt.Errorf("s3: commit revision %d: %w", rev, err)
	}
	return nil
}

func (s *DDBCommitStore) key(version string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrURI:     &types.AttributeValueMemberS{Value: s.baseURI},
		attrVersion: &types.AttributeValueMemberN{Value: version},
	}
}

func (s *DDBCommitStore) leaseItem(owner string, now time.Time) map[string]types.AttributeValue {
	item := s.key(leaseVersion)
	item[attrOwner] = &types.AttributeValueMemberS{Value: owner}
	item[attrExpires] = millis(now.Add(s.leaseTTL))
	return item
}

// revisionOf extracts n from a manifest name of the form PREFIX-n.ext.
func revisionOf(name string) (uint64, bool) {
	base := path.Base(name)
	dash := strings.LastIndexByte(base, '-')
	if dash < 0 {
		return 0, false
	}
	digits := strings.TrimSuffix(base[dash+1:], path.Ext(base))
	rev, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || rev == 0 {
		return 0, false
	}
	return rev, true
}

func millis(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var (
	_ blobstore.BlobStore        = (*DDBCommitStore)(nil)
	_ blobstore.ConditionalStore = (*DDBCommitStore)(nil)
	_ blobstore.Locker           = (*DDBCommitStore)(nil)
	_ blobstore.Pinger           = (*DDBCommitStore)(nil)
)
