package rag

import "testing"

func chunk(id string) RetrievedChunk {
	return RetrievedChunk{ID: id}
}

func TestFuseBothListsOutranksSingle(t *testing.T) {
	semantic := []RetrievedChunk{chunk("doc-a_0"), chunk("doc-a_1")}
	keyword := []RetrievedChunk{chunk("doc-b_0"), chunk("doc-a_1")}

	fused := fuse(semantic, keyword)

	if len(fused) != 3 {
		t.Fatalf("expected 3 fused results, got %d", len(fused))
	}
	if fused[0].ID != "doc-a_1" {
		t.Fatalf("expected the chunk found by both legs first, got %s", fused[0].ID)
	}

	want := 1.0/float64(rrfK+2) + 1.0/float64(rrfK+2)
	if fused[0].Score != want {
		t.Fatalf("expected accumulated score %v, got %v", want, fused[0].Score)
	}
}

func TestFuseTiesKeepFirstSeenOrder(t *testing.T) {
	semantic := []RetrievedChunk{chunk("doc-a_0")}
	keyword := []RetrievedChunk{chunk("doc-b_0")}

	fused := fuse(semantic, keyword)

	if len(fused) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(fused))
	}
	if fused[0].ID != "doc-a_0" || fused[1].ID != "doc-b_0" {
		t.Fatalf("expected tie to keep first-seen order, got %s, %s", fused[0].ID, fused[1].ID)
	}
}

func TestFusePayloadFromFirstList(t *testing.T) {
	semantic := []RetrievedChunk{{ID: "doc-a_0", Text: "preview text"}}
	keyword := []RetrievedChunk{{ID: "doc-a_0", Text: "full chunk text"}}

	fused := fuse(semantic, keyword)

	if len(fused) != 1 {
		t.Fatalf("expected 1 fused result, got %d", len(fused))
	}
	if fused[0].Text != "preview text" {
		t.Fatalf("expected payload from the first list, got %q", fused[0].Text)
	}
}

func TestFuseEmptyLists(t *testing.T) {
	if fused := fuse(nil, nil); len(fused) != 0 {
		t.Fatalf("expected no results, got %d", len(fused))
	}
}
