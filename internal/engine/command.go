package engine

import (
	"strconv"
	"strings"
)

// Command is an engine invocation under construction. Options are rendered in
// the owning client's dialect.
type Command struct {
	stage   string
	client  *Client
	args    []string
	logPath string
}

// Stage returns the pipeline stage the command belongs to.
func (cmd *Command) Stage() string { return cmd.stage }

// Option appends a flag with a value.
func (cmd *Command) Option(name, value string) *Command {
	cmd.args = append(cmd.args, cmd.client.Flag(name), value)
	return cmd
}

// Switch appends a flag without a value.
func (cmd *Command) Switch(name string) *Command {
	cmd.args = append(cmd.args, cmd.client.Flag(name))
	return cmd
}

// Int appends an integer-valued flag.
func (cmd *Command) Int(name string, value int) *Command {
	return cmd.Option(name, strconv.Itoa(value))
}

// Float appends a float-valued flag, always rendered with a decimal point.
func (cmd *Command) Float(name string, value float64) *Command {
	return cmd.Option(name, FormatFloat(value))
}

// Threads appends the client's thread count.
func (cmd *Command) Threads() *Command {
	return cmd.Int("threads", cmd.client.threads)
}

// Log directs the engine log to path; Run returns its contents.
func (cmd *Command) Log(path string) *Command {
	cmd.logPath = path
	return cmd.Option("log", path)
}

// Args returns a copy of the rendered argument list.
func (cmd *Command) Args() []string {
	return append([]string(nil), cmd.args...)
}

// FormatFloat renders v the way the engine expects numeric options ("1.0", "0.97").
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
