package transfer

import "testing"

func TestComputePartPlan(t *testing.T) {
	const (
		defaultPartSize = 10 * mib
		maxParts        = 10
		maxPartSize     = 50 * mib
	)

	cases := []struct {
		name        string
		fileSize    int64
		wantErr     bool
		wantSize    int64
		wantNumPart int64
	}{
		{
			name:        "fits within default part size and max parts",
			fileSize:    25 * mib,
			wantSize:    defaultPartSize,
			wantNumPart: 3,
		},
		{
			name:        "exactly at max parts boundary",
			fileSize:    defaultPartSize * maxParts,
			wantSize:    defaultPartSize,
			wantNumPart: maxParts,
		},
		{
			name:        "one byte over max parts boundary grows part size",
			fileSize:    defaultPartSize*maxParts + 1,
			wantSize:    11 * mib, // ceil((100MiB+1)/10) rounded up to next MiB
			wantNumPart: 10,
		},
		{
			name:     "exceeds max part size after regrowth",
			fileSize: maxPartSize*maxParts + 1,
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := computePartPlan(tc.fileSize, defaultPartSize, maxParts, maxPartSize)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got plan %+v", plan)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if plan.PartSize != tc.wantSize {
				t.Errorf("PartSize = %d, want %d", plan.PartSize, tc.wantSize)
			}
			if plan.NumParts != tc.wantNumPart {
				t.Errorf("NumParts = %d, want %d", plan.NumParts, tc.wantNumPart)
			}
		})
	}
}

func TestPartBoundsFinalPartSmaller(t *testing.T) {
	plan := PartPlan{Multipart: true, PartSize: 10 * mib, NumParts: 3}
	fileSize := int64(25 * mib)

	for n := int64(1); n < plan.NumParts; n++ {
		min, max := partBounds(plan, fileSize, n)
		if min != plan.PartSize || max != plan.PartSize {
			t.Errorf("part %d: got (%d,%d), want exact %d", n, min, max, plan.PartSize)
		}
	}
	min, max := partBounds(plan, fileSize, plan.NumParts)
	want := fileSize - plan.PartSize*(plan.NumParts-1)
	if min != want || max != want {
		t.Errorf("final part: got (%d,%d), want %d", min, max, want)
	}
}
