package interactive

import (
	"flag"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/command"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

// callOptions are the flags accepted in front of a command name.
type callOptions struct {
	Policy  command.Policy
	Timeout time.Duration
	Name    string
	Args    []string
}

// parseCallArgs parses "[-policy p] [-timeout d] <name> [args...]". Flag
// parsing stops at the command name, so arguments may be negative numbers.
func parseCallArgs(args []string, defaultTimeout time.Duration) (callOptions, error) {
	opts := callOptions{Policy: command.Immediate, Timeout: defaultTimeout}

	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	policy := fs.String("policy", "immediate", "immediate, delay or drop")
	fs.DurationVar(&opts.Timeout, "timeout", defaultTimeout, "wait timeout for immediate calls (-1 waits forever)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	p, ok := command.ParsePolicy(strings.ToUpper(*policy))
	if !ok {
		return opts, fmt.Errorf("invalid policy: %s (must be immediate, delay or drop)", *policy)
	}
	opts.Policy = p

	if fs.NArg() < 1 {
		return opts, fmt.Errorf("usage: call [-policy p] [-timeout d] <command> [args...]")
	}
	opts.Name = fs.Arg(0)
	opts.Args = fs.Args()[1:]
	return opts, nil
}

// parseTimeout parses a wait timeout. "forever" and -1 block until the value
// arrives; a bare number is taken as milliseconds.
func parseTimeout(s string) (time.Duration, error) {
	switch s {
	case "forever", "-1":
		return command.WaitForever, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout: %s", s)
	}
	return d, nil
}

// parseArgs converts console arguments to values of the declared parameter
// types. Each argument is a YAML scalar or flow collection; a parameter
// with an enum mapper also accepts an entry name.
func parseArgs(desc command.Descriptor, meta *attribute.Store, args []string) ([]value.TypedValue, error) {
	if len(args) != desc.Arity() {
		return nil, fmt.Errorf("expected %d arguments (%s), got %d", desc.Arity(), desc, len(args))
	}
	params := make([]value.TypedValue, len(args))
	for i, arg := range args {
		ti := desc.Params[i]
		if id, ok := enumID(meta, i, arg); ok {
			arg = strconv.FormatInt(id, 10)
		}
		v, err := parseValue(arg, ti)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		params[i] = v
	}
	return params, nil
}

// parseValue decodes s as a YAML value of type ti.
func parseValue(s string, ti typeinfo.TypeInfo) (value.TypedValue, error) {
	rt := ti.ReflectType()
	if rt == nil {
		return value.TypedValue{}, fmt.Errorf("type %s cannot be entered", ti)
	}
	ptr := reflect.New(rt)
	if err := yaml.Unmarshal([]byte(s), ptr.Interface()); err != nil {
		return value.TypedValue{}, fmt.Errorf("%q is not a %s: %w", s, ti, err)
	}
	return value.View(ptr.Interface(), ti, true)
}

// enumID maps an enum entry name to its id when parameter i is enum mapped.
func enumID(meta *attribute.Store, i int, name string) (int64, bool) {
	if meta == nil {
		return 0, false
	}
	pm, err := meta.Param(i)
	if err != nil || pm.Class() != attribute.ClassEnumMapped {
		return 0, false
	}
	mapper, err := attribute.Value[*attribute.EnumMapper](pm, attribute.EnumMapperAttr)
	if err != nil || mapper == nil {
		return 0, false
	}
	return mapper.ID(name)
}

// parseCallID parses a call id as printed by the console.
func parseCallID(s string) (command.CallID, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid call id: %s", s)
	}
	return command.CallID(id), nil
}
