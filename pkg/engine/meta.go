package engine

import (
	"fmt"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
)

// defaultMeta describes desc with plain stores and positional names.
func defaultMeta(desc command.Descriptor) (*attribute.Store, error) {
	var ret *attribute.Store
	if !desc.Return.IsVoid() {
		ret = attribute.NewPlain(desc.Return)
	}
	b := attribute.NewFunctionBuilder(ret)
	for i, p := range desc.Params {
		b.AppendParameter(fmt.Sprintf("p%d", i), attribute.NewPlain(p))
	}
	return b.Build()
}
