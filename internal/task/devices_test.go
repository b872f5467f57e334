package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDevices(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []int
	}{
		{"none", "python train.py", nil},
		{"single", "CUDA_VISIBLE_DEVICES=0 python train.py", []int{0}},
		{"list", "CUDA_VISIBLE_DEVICES=0,1,2 python train.py --epochs 5", []int{0, 1, 2}},
		{"quoted", `CUDA_VISIBLE_DEVICES="0,1" python train.py`, []int{0, 1}},
		{"spaced quoted", `CUDA_VISIBLE_DEVICES="0, 1 ,2"  python train.py`, []int{0, 1, 2}},
		{"dedup", "CUDA_VISIBLE_DEVICES=0,0,1 python train.py", []int{0, 1}},
		{"first-occurrence-wins", "CUDA_VISIBLE_DEVICES=0 some && CUDA_VISIBLE_DEVICES=1 other", []int{0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseDevices(tt.command))
		})
	}
}
