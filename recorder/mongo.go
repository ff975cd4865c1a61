package recorder

import (
	"context"
	"fmt"
	"slices"
	"time"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultBatchSize = 1000
	insertTimeout    = 30 * time.Second
)

// inserter *mongo.Collection中用到的部分
type inserter interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// Mongo MongoDB记录器
// 说明：每条记录为一个文档，包含实验标签与固定键，按批写入
type Mongo struct {
	coll      inserter
	keys      []string
	tags      bson.D
	batch     []interface{}
	batchSize int
	closed    bool
}

var _ entity.IRecorder = (*Mongo)(nil)

// NewMongo 创建MongoDB记录器
// 参数：client-MongoDB客户端，path-集合，keys-固定键，tags-附加到每个文档的实验标签，batchSize-批大小（<=0使用默认值）
func NewMongo(client *mongo.Client, path config.MongoPath, keys []string, tags bson.D, batchSize int) (*Mongo, error) {
	return newMongo(mongoutil.GetMongoColl(client, path), keys, tags, batchSize)
}

func newMongo(coll inserter, keys []string, tags bson.D, batchSize int) (*Mongo, error) {
	if err := checkNewKeys(keys); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Mongo{
		coll:      coll,
		keys:      slices.Clone(keys),
		tags:      tags,
		batch:     make([]interface{}, 0, batchSize),
		batchSize: batchSize,
	}, nil
}

func (r *Mongo) Keys() []string {
	return slices.Clone(r.keys)
}

func (r *Mongo) Log(data map[string]float64) error {
	if r.closed {
		return ErrClosed
	}
	if err := checkKeys(r.keys, data); err != nil {
		return err
	}
	doc := make(bson.D, 0, len(r.tags)+len(r.keys))
	doc = append(doc, r.tags...)
	for _, k := range r.keys {
		doc = append(doc, bson.E{Key: k, Value: data[k]})
	}
	r.batch = append(r.batch, doc)
	if len(r.batch) >= r.batchSize {
		return r.flush()
	}
	return nil
}

func (r *Mongo) flush() error {
	if len(r.batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if _, err := r.coll.InsertMany(ctx, r.batch); err != nil {
		return fmt.Errorf("recorder: insert %d documents: %w", len(r.batch), err)
	}
	r.batch = r.batch[:0]
	return nil
}

func (r *Mongo) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.flush()
}
