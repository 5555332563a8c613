package kvcache_test

import (
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/kvcache"
	"github.com/ardanlabs/dpos/foundation/blockchain/storage"
	"github.com/stretchr/testify/require"
)

// batchCounter counts the batches that reach the store and fails them
// while fail is set.
type batchCounter struct {
	*storage.Storage
	batches int
	fail    bool
}

func (bc *batchCounter) WriteBatch(ops []kvcache.Op) error {
	if bc.fail {
		return errBroken
	}
	bc.batches++
	return bc.Storage.WriteBatch(ops)
}

func Test_Batch(t *testing.T) {
	t.Log("Given the need to write several tables in one store batch.")
	{
		require := require.New(t)

		strg, err := storage.NewMemory()
		require.NoError(err)
		t.Cleanup(func() { strg.Close() })

		store := batchCounter{Storage: strg}
		batch := kvcache.NewBatch(&store)

		numbers := kvcache.New[string, uint64](prefixNumbers, kvcache.StringKey{}, kvcache.RLP[uint64]{}, batch)
		counter := kvcache.NewSingle[uint64](prefixCounter, kvcache.RLP[uint64]{}, batch)

		testID := 0
		t.Logf("\tTest %d:\tWhen two tables commit together.", testID)
		{
			require.NoError(numbers.Set("a", 1))
			require.NoError(counter.Set(7))

			var staged uint64
			var nested error
			err := batch.Commit(func() error {
				if err := numbers.Flush(); err != nil {
					return err
				}

				v, _, err := numbers.Get("a")
				if err != nil {
					return err
				}
				staged = v

				nested = batch.Commit(func() error { return nil })

				return counter.Flush()
			})
			require.NoError(err)
			require.Equal(1, store.batches)
			t.Logf("\t%s\tTest %d:\tShould reach the store as one batch.", success, testID)

			require.Equal(uint64(1), staged)
			t.Logf("\t%s\tTest %d:\tShould read staged writes back while staging.", success, testID)

			require.ErrorIs(nested, kvcache.ErrBatchStaging)
			t.Logf("\t%s\tTest %d:\tShould refuse a commit inside a commit.", success, testID)

			fresh := kvcache.NewSingle[uint64](prefixCounter, kvcache.RLP[uint64]{}, strg)
			v, exists, err := fresh.Get()
			require.NoError(err)
			require.True(exists)
			require.Equal(uint64(7), v)
			t.Logf("\t%s\tTest %d:\tShould persist every table.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the store fails the commit.", testID)
		{
			store.fail = true

			require.NoError(numbers.Set("b", 2))
			err := batch.Commit(numbers.Flush, kvcache.Op{Key: []byte("marker"), Value: []byte{1}})
			require.ErrorIs(err, errBroken)
			t.Logf("\t%s\tTest %d:\tShould return the store error.", success, testID)

			fresh := kvcache.New[string, uint64](prefixNumbers, kvcache.StringKey{}, kvcache.RLP[uint64]{}, strg)
			_, exists, err := fresh.Get("b")
			require.NoError(err)
			require.False(exists)

			_, exists, err = strg.Get([]byte("marker"))
			require.NoError(err)
			require.False(exists)
			t.Logf("\t%s\tTest %d:\tShould write neither the tables nor the extra ops.", success, testID)

			store.fail = false

			require.NoError(numbers.Set("c", 3))
			require.NoError(numbers.Flush())
			require.Equal(2, store.batches)

			_, exists, err = fresh.Get("c")
			require.NoError(err)
			require.True(exists)
			t.Logf("\t%s\tTest %d:\tShould write through outside a commit.", success, testID)
		}
	}
}
