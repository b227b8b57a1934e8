package compose

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// canonicalizer renumbers every object reachable from the trailer in a fixed
// depth-first order so equal documents serialize to equal bytes.
type canonicalizer struct {
	xref  *model.XRefTable
	nums  map[int]int
	order []int
}

func (c *canonicalizer) resolve(objNr int) (types.Object, error) {
	e, ok := c.xref.Table[objNr]
	if !ok || e == nil || e.Free {
		return nil, nil
	}
	if l, ok := e.Object.(types.LazyObjectStreamObject); ok {
		o, err := l.DecodedObject(context.Background())
		if err != nil {
			return nil, fmt.Errorf("decode object %d: %w", objNr, err)
		}
		e.Object = o
	}
	return e.Object, nil
}

func (c *canonicalizer) visitRef(ref types.IndirectRef) error {
	old := ref.ObjectNumber.Value()
	if _, seen := c.nums[old]; seen {
		return nil
	}
	o, err := c.resolve(old)
	if err != nil {
		return err
	}
	if o == nil {
		return nil
	}
	c.order = append(c.order, old)
	c.nums[old] = len(c.order)
	return c.visit(o)
}

func (c *canonicalizer) visit(o types.Object) error {
	switch o := o.(type) {
	case types.IndirectRef:
		return c.visitRef(o)
	case types.Dict:
		return c.visitDict(o, false)
	case types.StreamDict:
		return c.visitDict(o.Dict, true)
	case types.Array:
		for _, v := range o {
			if err := c.visit(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *canonicalizer) visitDict(d types.Dict, stream bool) error {
	for _, k := range sortedKeys(d) {
		if stream && k == "Length" {
			continue
		}
		if err := c.visit(d[k]); err != nil {
			return err
		}
	}
	return nil
}

func (c *canonicalizer) rewrite(o types.Object) types.Object {
	switch o := o.(type) {
	case types.IndirectRef:
		n, ok := c.nums[o.ObjectNumber.Value()]
		if !ok {
			return nil
		}
		return types.IndirectRef{ObjectNumber: types.Integer(n)}
	case types.Dict:
		d := types.NewDict()
		for k, v := range o {
			d[k] = c.rewrite(v)
		}
		return d
	case types.Array:
		a := make(types.Array, len(o))
		for i, v := range o {
			a[i] = c.rewrite(v)
		}
		return a
	}
	return o
}

func sortedKeys(d types.Dict) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeCanonical serializes ctx with a classic xref table. Object numbers follow a
// depth-first walk from the catalog, the Info dates are dropped and the file ID is
// the digest of the body.
func writeCanonical(ctx *model.Context, w io.Writer) error {
	xref := ctx.XRefTable
	if xref.Root == nil {
		return fmt.Errorf("document has no catalog")
	}
	c := &canonicalizer{xref: xref, nums: map[int]int{}}
	if err := c.visitRef(*xref.Root); err != nil {
		return err
	}
	if xref.Info != nil {
		if err := c.visitRef(*xref.Info); err != nil {
			return err
		}
	}

	var body bytes.Buffer
	fmt.Fprintf(&body, "%%PDF-%s\n%%\xe2\xe3\xcf\xd3\n", xref.Version())
	offsets := make([]int, len(c.order))
	for i, old := range c.order {
		o, err := c.resolve(old)
		if err != nil {
			return err
		}
		if xref.Info != nil && old == xref.Info.ObjectNumber.Value() {
			if d, ok := o.(types.Dict); ok {
				d = d.Clone().(types.Dict)
				d.Delete("CreationDate")
				d.Delete("ModDate")
				o = d
			}
		}
		offsets[i] = body.Len()
		fmt.Fprintf(&body, "%d 0 obj\n", i+1)
		if err := c.writeObject(&body, o); err != nil {
			return fmt.Errorf("write object %d: %w", old, err)
		}
		body.WriteString("\nendobj\n")
	}

	sum := md5.Sum(body.Bytes())
	id := hex.EncodeToString(sum[:])

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(body.Bytes()); err != nil {
		return err
	}
	size := len(c.order) + 1
	fmt.Fprintf(bw, "xref\n0 %d\n0000000000 65535 f\r\n", size)
	for _, off := range offsets {
		fmt.Fprintf(bw, "%010d 00000 n\r\n", off)
	}
	trailer := types.Dict{
		"Size": types.Integer(size),
		"Root": types.IndirectRef{ObjectNumber: types.Integer(c.nums[xref.Root.ObjectNumber.Value()])},
		"ID":   types.Array{types.HexLiteral(id), types.HexLiteral(id)},
	}
	if xref.Info != nil {
		if n, ok := c.nums[xref.Info.ObjectNumber.Value()]; ok {
			trailer["Info"] = types.IndirectRef{ObjectNumber: types.Integer(n)}
		}
	}
	fmt.Fprintf(bw, "trailer\n%s\nstartxref\n%d\n%%%%EOF\n", trailer.PDFString(), body.Len())
	return bw.Flush()
}

func (c *canonicalizer) writeObject(w *bytes.Buffer, o types.Object) error {
	switch o := o.(type) {
	case nil:
		w.WriteString("null")
	case types.StreamDict:
		if o.Raw == nil && o.Content != nil {
			if err := o.Encode(); err != nil {
				return err
			}
		}
		d := c.rewrite(o.Dict).(types.Dict)
		d["Length"] = types.Integer(len(o.Raw))
		w.WriteString(d.PDFString())
		w.WriteString("\nstream\n")
		w.Write(o.Raw)
		w.WriteString("\nendstream")
	default:
		w.WriteString(c.rewrite(o).PDFString())
	}
	return nil
}
