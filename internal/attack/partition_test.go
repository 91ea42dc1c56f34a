package attack

import (
	"sort"
	"testing"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"
)

func TestPartitionUntargeted(t *testing.T) {
	o := Partition([]int{0, 1, 2, 3}, []int{0, 2, 2, 1}, DefaultPolicy())
	if o.Fooled.Len() != 2 || !o.Fooled.Contains(1) || !o.Fooled.Contains(3) {
		t.Fatalf("expected fooled {1,3}, got %v", o.Fooled)
	}
	if o.NotFooled.Len() != 2 || !o.NotFooled.Contains(0) || !o.NotFooled.Contains(2) {
		t.Fatalf("expected not fooled {0,2}, got %v", o.NotFooled)
	}
}

func TestPartitionTargeted(t *testing.T) {
	p := DefaultPolicy()
	p.Targeted = true
	p.TargetClass = 5
	// a changed prediction that misses the target is not a success
	o := Partition([]int{0, 1, 2}, []int{5, 3, 2}, p)
	if o.Fooled.Len() != 1 || o.Fooled[0] != 0 {
		t.Fatalf("expected fooled {0}, got %v", o.Fooled)
	}
}

func TestPartitionCoversBatch(t *testing.T) {
	clean := []int{0, 1, 2, 3, 4, 5, 6}
	adv := []int{0, 0, 2, 2, 4, 4, 6}
	o := Partition(clean, adv, DefaultPolicy())

	all := append(append(tensor.IndexSet{}, o.Fooled...), o.NotFooled...)
	sort.Ints(all)
	if len(all) != len(clean) {
		t.Fatalf("expected %d rows, got %d", len(clean), len(all))
	}
	for i, v := range all {
		if v != i {
			t.Fatalf("partition is not a disjoint cover: %v", all)
		}
	}
}

func TestSelectDisabled(t *testing.T) {
	o := Outcome{Fooled: tensor.IndexSet{1}, NotFooled: tensor.IndexSet{0, 2}}
	s := Select(o, 3, DefaultPolicy())
	if s.Success.Len() != 0 {
		t.Fatalf("expected no success rows, got %v", s.Success)
	}
	if s.Distance.Len() != 2 || s.Distance.Contains(1) {
		t.Fatalf("expected distance over not-fooled rows, got %v", s.Distance)
	}
	if !s.Optimizable() {
		t.Fatal("expected optimizable selection")
	}
}

func TestSelectAllFooledDisabled(t *testing.T) {
	o := Outcome{Fooled: tensor.IndexSet{0, 1}, NotFooled: tensor.IndexSet{}}
	if Select(o, 2, DefaultPolicy()).Optimizable() {
		t.Fatal("expected nothing to optimize when every sample is fooled")
	}
}

func TestSelectAllFooledEnabled(t *testing.T) {
	p := DefaultPolicy()
	p.OptimizeOnSuccess = true
	o := Outcome{Fooled: tensor.IndexSet{0, 1}, NotFooled: tensor.IndexSet{}}
	s := Select(o, 2, p)
	if !s.Optimizable() {
		t.Fatal("expected success loss to be optimizable")
	}
	if s.Success.Len() != 2 || s.Distance.Len() != 2 || s.Margin.Len() != 0 {
		t.Fatalf("unexpected selection %+v", s)
	}
}
