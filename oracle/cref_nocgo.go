//go:build !cgo

package oracle

import (
	"github.com/bemasher/rtlamsync/nco"
	"github.com/bemasher/rtlamsync/pll"
)

// CRef is unavailable without cgo.
type CRef struct{}

func NewCRef(c *pll.Constants, tbl *nco.Table) (*CRef, error) {
	return nil, ErrNoCgo
}

func (ref *CRef) Reset() {}

func (ref *CRef) Step(s pll.Sample) Triple {
	return Triple{}
}
