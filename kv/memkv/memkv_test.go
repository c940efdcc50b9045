package memkv

import (
	"context"
	"errors"
	"testing"

	"github.com/justapithecus/flowstate/kv"
)

func TestConditionalPut_AttributeNotExistsGuardsFirstWriteOnly(t *testing.T) {
	s := New()
	ctx := context.Background()

	in := kv.ConditionalPutInput{
		Table:     "t",
		Item:      kv.Item{"K": "k1", "V": "first"},
		Condition: "attribute_not_exists(#v)",
		Names:     map[string]string{"#v": "V"},
	}
	if err := s.ConditionalPut(ctx, in); err != nil {
		t.Fatalf("first put: %v", err)
	}

	in.Item = kv.Item{"K": "k1", "V": "second"}
	err := s.ConditionalPut(ctx, in)
	if !errors.Is(err, kv.ErrConditionalCheckFailed) {
		t.Fatalf("expected ErrConditionalCheckFailed, got %v", err)
	}

	item, err := s.Get(ctx, kv.GetInput{Table: "t", Key: kv.Key{"K": "k1"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item["V"] != "first" {
		t.Fatalf("expected value to remain %q, got %v", "first", item["V"])
	}
}

func TestConditionalUpdate_SetArithmeticIncrementsAbsentBaseAsZero(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.ConditionalPut(ctx, kv.ConditionalPutInput{
		Table: "t",
		Item:  kv.Item{"K": "k1"},
	}); err != nil {
		t.Fatalf("seed put: %v", err)
	}

	err := s.ConditionalUpdate(ctx, kv.UpdateInput{
		Table:  "t",
		Key:    kv.Key{"K": "k1"},
		Update: "SET #n = #n + :one",
		Names:  map[string]string{"#n": "N"},
		Values: map[string]kv.AttributeValue{":one": int64(1)},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	item, err := s.Get(ctx, kv.GetInput{Table: "t", Key: kv.Key{"K": "k1"}})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if item["N"] != int64(1) {
		t.Fatalf("expected N=1, got %v", item["N"])
	}
}

func TestConditionalUpdate_AttributeExistsGuardRejectsMissingRow(t *testing.T) {
	s := New()
	err := s.ConditionalUpdate(context.Background(), kv.UpdateInput{
		Table:     "t",
		Key:       kv.Key{"CallerId": "c1", "CallerStep": int64(0)},
		Update:    "SET #r = :r",
		Condition: "attribute_exists(#cid)",
		Names:     map[string]string{"#r": "Result", "#cid": "CallerId"},
		Values:    map[string]kv.AttributeValue{":r": "done"},
	})
	if !errors.Is(err, kv.ErrConditionalCheckFailed) {
		t.Fatalf("expected ErrConditionalCheckFailed, got %v", err)
	}
}

func TestGet_MissingItemReturnsErrItemNotFound(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), kv.GetInput{Table: "t", Key: kv.Key{"K": "missing"}})
	if !errors.Is(err, kv.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestScan_FiltersByEqualityAcrossTable(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i, rowHash := range []string{"r1", "r2"} {
		if err := s.ConditionalPut(ctx, kv.ConditionalPutInput{
			Table: "t",
			Item:  kv.Item{"K": "k1", "RowHash": rowHash, "Seq": int64(i)},
		}); err != nil {
			t.Fatalf("put %s: %v", rowHash, err)
		}
	}
	if err := s.ConditionalPut(ctx, kv.ConditionalPutInput{
		Table: "t",
		Item:  kv.Item{"K": "k2", "RowHash": "r3"},
	}); err != nil {
		t.Fatalf("put other key: %v", err)
	}

	rows, err := s.Scan(ctx, kv.ScanInput{
		Table:  "t",
		Filter: "#k = :k",
		Names:  map[string]string{"#k": "K"},
		Values: map[string]kv.AttributeValue{":k": "k1"},
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for k1, got %d", len(rows))
	}
}

func TestDescribeTableStatus_UnknownTableReturnsErrTableNotFound(t *testing.T) {
	s := New()
	_, err := s.DescribeTableStatus(context.Background(), "nope")
	if !errors.Is(err, kv.ErrTableNotFound) {
		t.Fatalf("expected ErrTableNotFound, got %v", err)
	}
}

func TestCreateTable_IsIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()
	schema := kv.TableSchema{Table: "t", HashKey: kv.KeyAttribute{Name: "K", Type: kv.AttributeTypeString}}

	if err := s.CreateTable(ctx, schema); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.CreateTable(ctx, schema); err != nil {
		t.Fatalf("second create: %v", err)
	}

	status, err := s.DescribeTableStatus(ctx, "t")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if status != kv.TableStatusActive {
		t.Fatalf("expected Active, got %v", status)
	}
}
