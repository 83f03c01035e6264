// internal/cli/shell.go

// Package cli provides an ishell backed interactive focuser shell.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"focuser-service/internal/config"
	"focuser-service/internal/model"
	"focuser-service/internal/service"
	"focuser-service/pkg/driver"
)

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	evalOnly   bool
	outputJSON bool
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// Shell drives one focuser service from the command line.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool

	Shell   *ishell.Shell
	Service *service.FocuserService

	ctx   context.Context
	steps int
}

// New creates a shell. defaultSteps is the initial step size of in and out.
func New(svc *service.FocuserService, defaultSteps int) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:   ishell.New(),
		Service: svc,

		ctx:   context.Background(),
		steps: defaultSteps,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range s.commands() {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Run connects the first focuser found when AutoConnect is set, then either
// evaluates args or starts the interactive shell.
func (s *Shell) Run(args ...string) error {
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Println("Scanning for focusers ...")
		}
		status, err := s.Service.AutoConnect(s.ctx)
		switch {
		case errors.Is(err, service.ErrNoFocuser):
			s.notify("No focusers found. Connect a focuser and use connect.")
		case err != nil:
			s.notify(fmt.Sprintf("Can't connect to focuser: %v", err))
		default:
			s.notify(s.connected(status))
		}
	}

	if len(args) > 0 {
		return s.Shell.Process(args...)
	}
	if s.Interactive {
		s.Shell.Run()
		return nil
	}
	return fmt.Errorf("command expected")
}

// Steps returns the current default step size.
func (s *Shell) Steps() int {
	return s.steps
}

// result is what a command produces: text for humans, data for -json.
type result struct {
	text string
	data interface{}
}

func (s *Shell) respond(c *ishell.Context, res result, err error) {
	if err != nil {
		c.Err(err)
		return
	}
	if s.OutputJSON && res.data != nil {
		out, err := json.Marshal(res.data)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	if res.text != "" {
		c.Println(res.text)
	}
}

func (s *Shell) command(name string, aliases []string, help string, fn func(args []string) (result, error)) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: func(c *ishell.Context) {
			res, err := fn(c.Args)
			s.respond(c, res, err)
		},
	}
}

func (s *Shell) commands() []*ishell.Cmd {
	return []*ishell.Cmd{
		s.command("discover", []string{"list", "l"}, "", s.discover),
		{
			Name:    "connect",
			Aliases: []string{"c"},
			Help:    "[PORT]",
			Func: func(c *ishell.Context) {
				out, err := s.connect(c.Args)
				s.respond(c, result{text: out, data: s.Service.Status()}, err)
			},
		},
		s.command("disconnect", []string{"d"}, "", s.disconnect),
		s.command("status", []string{"st"}, "", s.status),
		s.command("version", []string{"v"}, "", s.version),
		s.command("pos", []string{"p"}, "", s.position),
		s.command("goto", []string{"g"}, "POSITION", s.gotoPosition),
		s.command("in", []string{"i"}, "[STEPS]", s.stepper(driver.DirectionIn)),
		s.command("out", []string{"o"}, "[STEPS]", s.stepper(driver.DirectionOut)),
		s.command("steps", nil, "[STEPS]", s.setSteps),
		s.command("power", []string{"pw"}, "[CHANNEL on|off]", s.power),
	}
}

func (s *Shell) discover([]string) (result, error) {
	found, err := s.Service.Discover(s.ctx)
	if err != nil {
		return result{}, err
	}
	if len(found) == 0 {
		return result{text: "No focusers found", data: found}, nil
	}
	lines := make([]string, 0, len(found))
	for _, f := range found {
		lines = append(lines, formatDiscovered(f))
	}
	return result{text: strings.Join(lines, "\n"), data: found}, nil
}

// connect opens the given port, or the one chosen from a scan, then reads
// the position and power state the way the prompt shows them.
func (s *Shell) connect(args []string) (string, error) {
	var port string
	if len(args) > 0 {
		port = args[0]
	} else {
		found, err := s.Service.Discover(s.ctx)
		if err != nil {
			return "", err
		}
		if len(found) == 0 {
			return "", service.ErrNoFocuser
		}
		index := 0
		if len(found) > 1 && s.Interactive && s.Shell != nil {
			items := make([]string, len(found))
			for n, f := range found {
				items[n] = formatDiscovered(f)
			}
			index = s.Shell.MultiChoice(items, "Which one to connect?")
		}
		if index < 0 {
			return "", fmt.Errorf("no focuser selected")
		}
		port = found[index].Port
	}

	status, err := s.Service.Connect(s.ctx, port)
	if err != nil {
		return "", err
	}
	return s.connected(status), nil
}

func (s *Shell) connected(status model.FocuserStatus) string {
	s.setPrompt(status.Port + " > ")

	var w strings.Builder
	fmt.Fprintf(&w, "Connected to focuser on %s (version %s)", status.Port, status.Version)
	if pos, err := s.Service.Position(s.ctx); err == nil {
		fmt.Fprintf(&w, "\nPosition: %d", pos)
	}
	if state, err := s.Service.Power(s.ctx); err == nil {
		fmt.Fprintf(&w, "\nRemote power: %s", formatPower(state))
	}
	return w.String()
}

func (s *Shell) disconnect([]string) (result, error) {
	if err := s.Service.Disconnect(); err != nil {
		return result{}, err
	}
	s.setPrompt(unconnectedPrompt)
	return result{text: "Disconnected", data: s.Service.Status()}, nil
}

func (s *Shell) status([]string) (result, error) {
	st := s.Service.Status()
	if st.State == model.ConnectionStateClosed {
		return result{text: "Not connected", data: st}, nil
	}

	var w strings.Builder
	fmt.Fprintf(&w, "%s %s version %s", st.Port, st.State, st.Version)
	if st.Position != nil {
		fmt.Fprintf(&w, "\nPosition: %d", *st.Position)
	}
	if st.Power != nil {
		fmt.Fprintf(&w, "\nRemote power: %s", formatPower(*st.Power))
	}
	fmt.Fprintf(&w, "\nStep size: %d", s.steps)
	return result{text: w.String(), data: st}, nil
}

func (s *Shell) version([]string) (result, error) {
	v, err := s.Service.Version(s.ctx)
	if err != nil {
		return result{}, err
	}
	return result{text: v, data: map[string]string{"version": v}}, nil
}

func (s *Shell) position([]string) (result, error) {
	pos, err := s.Service.Position(s.ctx)
	if err != nil {
		return result{}, err
	}
	return positionResult(pos), nil
}

func (s *Shell) gotoPosition(args []string) (result, error) {
	if len(args) < 1 {
		return result{}, fmt.Errorf("POSITION required")
	}
	target, err := strconv.Atoi(args[0])
	if err != nil {
		return result{}, fmt.Errorf("invalid POSITION: %v", err)
	}
	pos, err := s.Service.Goto(s.ctx, target)
	if err != nil {
		return result{}, err
	}
	return positionResult(pos), nil
}

func (s *Shell) stepper(dir driver.Direction) func([]string) (result, error) {
	return func(args []string) (result, error) {
		steps := s.steps
		if len(args) > 0 {
			steps = s.validateSteps(args[0])
		}
		pos, err := s.Service.Step(s.ctx, dir, steps)
		if err != nil {
			return result{}, err
		}
		return positionResult(pos), nil
	}
}

func (s *Shell) setSteps(args []string) (result, error) {
	if len(args) > 0 {
		previous := s.steps
		if s.validateSteps(args[0]) != parseInt(args[0]) {
			return result{}, fmt.Errorf("step size must be in (0, %d), keeping %d", config.MaxDefaultSteps, previous)
		}
	}
	return result{text: strconv.Itoa(s.steps), data: map[string]int{"steps": s.steps}}, nil
}

// validateSteps adopts arg as the step size when 0 < arg < config.MaxDefaultSteps and
// otherwise keeps the previous one. It returns the step size in effect.
func (s *Shell) validateSteps(arg string) int {
	if n := parseInt(arg); n > 0 && n < config.MaxDefaultSteps {
		s.steps = n
	}
	return s.steps
}

func (s *Shell) power(args []string) (result, error) {
	if len(args) == 0 {
		state, err := s.Service.Power(s.ctx)
		if err != nil {
			return result{}, err
		}
		return result{text: formatPower(state), data: state}, nil
	}

	if len(args) < 2 {
		return result{}, fmt.Errorf("CHANNEL and on|off required")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return result{}, fmt.Errorf("invalid CHANNEL: %v", err)
	}
	var on bool
	switch strings.ToLower(args[1]) {
	case "on", "1":
		on = true
	case "off", "0":
	default:
		return result{}, fmt.Errorf("invalid state %q, want on or off", args[1])
	}

	final, err := s.Service.SetPower(s.ctx, model.PowerChannel(n-1), on)
	if err != nil {
		return result{}, err
	}
	return result{
		text: fmt.Sprintf("Remote power channel %d set to %s", n, onOff(final)),
		data: map[string]interface{}{"channel": n, "on": final},
	}, nil
}

// notify prints a message in interactive mode only
func (s *Shell) notify(msg string) {
	if s.Interactive && s.Shell != nil {
		s.Shell.Println(msg)
	}
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

func positionResult(pos model.Position) result {
	return result{text: strconv.Itoa(int(pos)), data: map[string]int{"position": int(pos)}}
}

func parseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func formatPower(state model.PowerState) string {
	channels := state.Channels()
	parts := make([]string, len(channels))
	for n, on := range channels {
		parts[n] = fmt.Sprintf("%d:%s", n+1, onOff(on))
	}
	return strings.Join(parts, " ")
}

func formatDiscovered(f model.DiscoveredFocuser) string {
	s := fmt.Sprintf("%s: version %s", f.Port, f.Version)
	if f.Product != "" {
		s += " (" + f.Product + ")"
	}
	return s
}
