package shardex

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/shardex/model"
	"github.com/hupe1980/shardex/shard"
	"github.com/hupe1980/shardex/testutil"
)

func openStubs(t *testing.T, stubs ...*testutil.StubShard) *Database {
	t.Helper()
	shards := make([]shard.Shard, len(stubs))
	for i, s := range stubs {
		shards[i] = s
	}
	db, err := OpenShards(shards, WithLogger(NoopLogger()))
	require.NoError(t, err)
	return db
}

func collect[T any](t *testing.T, it shard.Iterator[T]) []T {
	t.Helper()
	items, err := shard.Collect(it)
	require.NoError(t, err)
	return items
}

func TestDatabase_InterleavedDocIDs(t *testing.T) {
	a := testutil.NewStubShard("a")
	a.Put(5, testutil.Doc("whale").WithData([]byte("a5")))
	b := testutil.NewStubShard("b", testutil.Doc("whale").WithData([]byte("b1")))
	c := testutil.NewStubShard("c")
	c.Put(2, testutil.Doc("whale", "sea").WithData([]byte("c2")))

	db := openStubs(t, a, b, c)
	defer db.Close()

	assert.Equal(t, 3, db.NumShards())

	doc, err := db.Document(13)
	require.NoError(t, err)
	assert.Equal(t, []byte("a5"), doc.Data)

	doc, err = db.Document(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("b1"), doc.Data)

	doc, err = db.Document(6)
	require.NoError(t, err)
	assert.Equal(t, []byte("c2"), doc.Data)

	// Combined id 1 maps to local id 1 of shard a, which does not exist.
	_, err = db.Document(1)
	assert.ErrorIs(t, err, ErrDocNotFound)

	_, err = db.Document(0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	last, err := db.LastDocID()
	require.NoError(t, err)
	assert.Equal(t, model.DocID(13), last)

	postings := collect(t, db.Postings("whale"))
	ids := make([]model.DocID, len(postings))
	for i, p := range postings {
		ids[i] = p.DocID
	}
	assert.Equal(t, []model.DocID{2, 6, 13}, ids)

	n, err := db.DocLength(6)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestDatabase_RandomCorpus(t *testing.T) {
	const nShards = 3
	rng := testutil.NewRNG(42)
	vocab := rng.Vocabulary(30)

	stubs := make([]*testutil.StubShard, nShards)
	want := make(map[string][]model.DocID)
	lengths := make(map[model.DocID]uint64)
	var total uint64
	for i := range stubs {
		docs := rng.Documents(10+rng.IntN(10), vocab, 8)
		stubs[i] = testutil.NewStubShard(fmt.Sprintf("s%d", i), docs...)
		for j, doc := range docs {
			did := model.DocID(j*nShards + i + 1)
			lengths[did] = doc.Length()
			for _, term := range doc.TermList() {
				want[term] = append(want[term], did)
			}
		}
		total += uint64(len(docs))
	}

	db := openStubs(t, stubs...)
	defer db.Close()

	n, err := db.DocCount()
	require.NoError(t, err)
	assert.Equal(t, total, n)

	for term, ids := range want {
		slices.Sort(ids)

		tf, err := db.TermFreq(term)
		require.NoError(t, err)
		assert.Equal(t, uint64(len(ids)), tf, term)

		var got []model.DocID
		for _, p := range collect(t, db.Postings(term)) {
			got = append(got, p.DocID)
		}
		assert.Equal(t, ids, got, term)
	}

	for did, length := range lengths {
		got, err := db.DocLength(did)
		require.NoError(t, err)
		assert.Equal(t, length, got, "doc %d", did)
	}
}

func TestDatabase_Statistics(t *testing.T) {
	a := testutil.NewStubShard("a",
		testutil.Doc("cat", "dog"),
		testutil.Doc("cat"),
	)
	b := testutil.NewStubShard("b",
		testutil.Doc("cat", "cow", "pig", "hen"),
	)
	db := openStubs(t, a, b)
	defer db.Close()

	count, err := db.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	tf, err := db.TermFreq("cat")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), tf)

	cf, err := db.CollectionFreq("dog")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cf)

	ok, err := db.TermExists("cow")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = db.TermExists("yak")
	require.NoError(t, err)
	assert.False(t, ok)

	// (1.5*2 + 4*1) / 3
	avg, err := db.AvgLength()
	require.NoError(t, err)
	assert.InDelta(t, 7.0/3.0, avg, 1e-9)
}

func TestDatabase_EmptyView(t *testing.T) {
	db := openStubs(t)
	defer db.Close()

	count, err := db.DocCount()
	require.NoError(t, err)
	assert.Zero(t, count)

	avg, err := db.AvgLength()
	require.NoError(t, err)
	assert.Zero(t, avg)

	last, err := db.LastDocID()
	require.NoError(t, err)
	assert.Zero(t, last)

	_, err = db.Document(1)
	assert.ErrorIs(t, err, ErrDocNotFound)

	assert.Empty(t, collect(t, db.Postings("x")))
}

func TestDatabase_AllTermsSumsFrequencies(t *testing.T) {
	a := testutil.NewStubShard("a", testutil.Doc("cat"), testutil.Doc("cat", "ant"), testutil.Doc("cat"))
	b := testutil.NewStubShard("b")
	for i := model.DocID(1); i <= 5; i++ {
		b.Put(i, testutil.Doc("cat"))
	}
	b.Put(6, testutil.Doc("cow"))

	db := openStubs(t, a, b)
	defer db.Close()

	terms := collect(t, db.AllTerms("c"))
	require.Len(t, terms, 2)
	assert.Equal(t, shard.TermEntry{Term: "cat", TermFreq: 8, CollFreq: 8}, terms[0])
	assert.Equal(t, "cow", terms[1].Term)

	all := collect(t, db.AllTerms(""))
	assert.Equal(t, "ant", all[0].Term)
}

func TestDatabase_EmptyTermPostings(t *testing.T) {
	doc := model.NewDocument().WithTerm("x", 3)
	a := testutil.NewStubShard("a", doc)
	b := testutil.NewStubShard("b", testutil.Doc("y"), testutil.Doc("z"))

	db := openStubs(t, a, b)
	defer db.Close()

	postings := collect(t, db.Postings(""))
	assert.Equal(t, []shard.Posting{
		{DocID: 1, WDF: 1},
		{DocID: 2, WDF: 1},
		{DocID: 4, WDF: 1},
	}, postings)
}

func TestDatabase_TermListAndPositions(t *testing.T) {
	a := testutil.NewStubShard("a", testutil.PosDoc("to", "be", "or", "not", "to", "be"))
	b := testutil.NewStubShard("b", testutil.Doc("x"))

	db := openStubs(t, a, b)
	defer db.Close()

	terms := collect(t, db.TermList(1))
	names := make([]string, len(terms))
	for i, e := range terms {
		names[i] = e.Term
	}
	assert.Equal(t, []string{"be", "not", "or", "to"}, names)

	assert.Equal(t, []uint32{1, 5}, collect(t, db.Positions(1, "to")))

	ok, err := db.HasPositions()
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = shard.Collect(db.TermList(0))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDatabase_Values(t *testing.T) {
	a := testutil.NewStubShard("a",
		model.NewDocument().WithValue(0, []byte("m")),
		model.NewDocument().WithValue(0, []byte("c")),
	)
	b := testutil.NewStubShard("b",
		model.NewDocument().WithValue(0, []byte("x")),
	)
	empty := testutil.NewStubShard("empty")

	db := openStubs(t, a, b, empty)
	defer db.Close()

	freq, err := db.ValueFreq(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), freq)

	lo, err := db.ValueLowerBound(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), lo)

	hi, err := db.ValueUpperBound(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), hi)

	none, err := db.ValueUpperBound(7)
	require.NoError(t, err)
	assert.Nil(t, none)

	values := collect(t, db.ValueStream(0))
	require.Len(t, values, 3)
	assert.Equal(t, model.DocID(1), values[0].DocID)
	assert.Equal(t, model.DocID(2), values[1].DocID)
	assert.Equal(t, []byte("x"), values[1].Value)
	assert.Equal(t, model.DocID(4), values[2].DocID)
}

func TestDatabase_UnimplementedPropagates(t *testing.T) {
	a := testutil.NewStubShard("a", testutil.Doc("x"))
	b := testutil.NewStubShard("b", testutil.Doc("x")).
		Disable(testutil.CapTermFreq, testutil.CapPostings, testutil.CapValueBounds)

	db := openStubs(t, a, b)
	defer db.Close()

	_, err := db.TermFreq("x")
	assert.ErrorIs(t, err, ErrUnimplemented)

	_, err = shard.Collect(db.Postings("x"))
	assert.ErrorIs(t, err, ErrUnimplemented)

	_, err = db.ValueLowerBound(0)
	assert.ErrorIs(t, err, ErrUnimplemented)

	// Unaffected capabilities keep working.
	n, err := db.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestDatabase_Metadata(t *testing.T) {
	a := testutil.NewStubShard("a").SetMetadata("lang", "")
	b := testutil.NewStubShard("b").SetMetadata("lang", "en").SetMetadata("owner", "ops")
	c := testutil.NewStubShard("c").SetMetadata("lang", "de")

	db := openStubs(t, a, b, c)
	defer db.Close()

	v, err := db.Metadata("lang")
	require.NoError(t, err)
	assert.Equal(t, "en", v)

	v, err = db.Metadata("missing")
	require.NoError(t, err)
	assert.Empty(t, v)

	_, err = db.Metadata("")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	assert.Equal(t, []string{"lang", "owner"}, collect(t, db.MetadataKeys("")))
}

func TestDatabase_MetadataAsksEveryShard(t *testing.T) {
	a := testutil.NewStubShard("a").SetMetadata("lang", "en")
	b := testutil.NewStubShard("b").Disable(testutil.CapMetadata)

	db := openStubs(t, a, b)
	defer db.Close()

	_, err := db.Metadata("lang")
	assert.ErrorIs(t, err, ErrUnimplemented)
}

func TestDatabase_Synonyms(t *testing.T) {
	a := testutil.NewStubShard("a").AddSynonym("car", "auto").AddSynonym("car", "vehicle")
	b := testutil.NewStubShard("b").AddSynonym("car", "auto").AddSynonym("cat", "feline")

	db := openStubs(t, a, b)
	defer db.Close()

	assert.Equal(t, []string{"auto", "vehicle"}, collect(t, db.Synonyms("car")))
	assert.Equal(t, []string{"car", "cat"}, collect(t, db.SynonymKeys("ca")))
	assert.Empty(t, collect(t, db.Synonyms("dog")))
}

func TestDatabase_UUID(t *testing.T) {
	single := openStubs(t, testutil.NewStubShard("a").SetUUID("u-1"))
	defer single.Close()

	id, err := single.UUID()
	require.NoError(t, err)
	assert.Equal(t, "u-1", id)

	multi := openStubs(t, testutil.NewStubShard("a"), testutil.NewStubShard("b"))
	defer multi.Close()

	_, err = multi.UUID()
	assert.ErrorIs(t, err, ErrUnimplemented)
}

func TestDatabase_Spelling(t *testing.T) {
	a := testutil.NewStubShard("a").AddSpelling("separate", 5).AddSpelling("desperate", 2)
	b := testutil.NewStubShard("b").AddSpelling("separate", 1).AddSpelling("operate", 9)

	db := openStubs(t, a, b)
	defer db.Close()

	word, err := db.SpellingSuggestion("seperate", 2)
	require.NoError(t, err)
	assert.Equal(t, "separate", word)

	word, err = db.SpellingSuggestion("seperate", 0)
	require.NoError(t, err)
	assert.Empty(t, word)

	word, err = db.SpellingSuggestion("", -1)
	require.NoError(t, err)
	assert.Empty(t, word)

	spellings := collect(t, db.Spellings())
	require.Len(t, spellings, 3)
	assert.Equal(t, "separate", spellings[2].Term)
	assert.Equal(t, uint64(6), spellings[2].TermFreq)
}

func TestDatabase_Description(t *testing.T) {
	db := openStubs(t, testutil.NewStubShard("a"), testutil.NewStubShard("b"))
	assert.Equal(t, "Database(stub:a, stub:b)", db.Description())
	require.NoError(t, db.Close())
	assert.Equal(t, "Database(closed)", db.Description())
}

func TestDatabase_CloneAndRelease(t *testing.T) {
	a := testutil.NewStubShard("a", testutil.Doc("x"))
	db := openStubs(t, a)

	clone, err := db.Clone()
	require.NoError(t, err)

	require.NoError(t, db.Release())
	assert.False(t, a.Closed())

	_, err = db.DocCount()
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	n, err := clone.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	require.NoError(t, clone.Release())
	assert.True(t, a.Closed())

	// Releasing twice is a no-op.
	require.NoError(t, clone.Release())
}

func TestDatabase_CloseAffectsAllHandles(t *testing.T) {
	a := testutil.NewStubShard("a", testutil.Doc("x"))
	db := openStubs(t, a)

	clone, err := db.Clone()
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
	assert.True(t, a.Closed())

	_, err = clone.DocCount()
	assert.ErrorIs(t, err, ErrDatabaseClosed)
	assert.ErrorIs(t, err, ErrDatabase)

	_, err = shard.Collect(clone.Postings("x"))
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	_, err = db.Clone()
	assert.ErrorIs(t, err, ErrDatabaseClosed)

	require.NoError(t, clone.Release())
}

func TestDatabase_AddDatabase(t *testing.T) {
	a := testutil.NewStubShard("a", testutil.Doc("x"), testutil.Doc("x"))
	b := testutil.NewStubShard("b", testutil.Doc("x"))

	db := openStubs(t, a)
	other := openStubs(t, b)

	require.NoError(t, db.AddDatabase(other))
	assert.Equal(t, 2, db.NumShards())

	postings := collect(t, db.Postings("x"))
	ids := make([]model.DocID, len(postings))
	for i, p := range postings {
		ids[i] = p.DocID
	}
	assert.Equal(t, []model.DocID{1, 2, 3}, ids)

	// other keeps working with its own numbering.
	doc, err := other.Document(1)
	require.NoError(t, err)
	assert.True(t, doc.HasTerm("x"))

	require.NoError(t, other.Release())
	assert.False(t, b.Closed())

	require.NoError(t, db.Release())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())

	assert.ErrorIs(t, db.AddDatabase(nil), ErrInvalidArgument)
}

func TestDatabase_ReopenAndKeepAlive(t *testing.T) {
	ctx := context.Background()
	a := testutil.NewStubShard("a")
	b := testutil.NewStubShard("b")
	db := openStubs(t, a, b)

	require.NoError(t, db.Reopen(ctx))
	require.NoError(t, db.KeepAlive(ctx))
	require.NoError(t, db.KeepAlive(ctx))

	assert.Equal(t, 1, a.Reopens())
	assert.Equal(t, 1, b.Reopens())
	assert.Equal(t, 2, b.KeepAlives())

	require.NoError(t, db.Close())
	assert.ErrorIs(t, db.Reopen(ctx), ErrDatabaseClosed)
	assert.ErrorIs(t, db.KeepAlive(ctx), ErrDatabaseClosed)
}

func TestOpenShards_Nil(t *testing.T) {
	_, err := OpenShards([]shard.Shard{nil})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestOpen_Missing(t *testing.T) {
	ctx := context.Background()
	_, err := Open(ctx, []string{t.TempDir()}, WithLogger(NoopLogger()))
	assert.ErrorIs(t, err, ErrDatabaseOpening)
}
