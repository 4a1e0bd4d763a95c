// Package main provides the resnet command: inspect, run and train ResNet models on the CPU.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/born-ml/resnet/internal/autodiff"
	"github.com/born-ml/resnet/internal/backend/cpu"
	"github.com/born-ml/resnet/internal/optim"
	"github.com/born-ml/resnet/internal/resnet"
	"github.com/born-ml/resnet/internal/tensor"
)

const version = "v0.1.0"

const usage = `Usage: resnet <command> [flags]

Commands:
  version    Show version
  summary    Print the structure and parameter counts of a network
  forward    Run a forward pass on a random batch
  train      Run SGD steps on a random batch

Run "resnet <command> -h" for the flags of a command.
`

var errUsage = errors.New("unknown command")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatalf("resnet: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: none given", errUsage)
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "resnet %s\n", version)
		return nil
	case "summary":
		return runSummary(args[1:], stdout)
	case "forward":
		return runForward(args[1:], stdout)
	case "train":
		return runTrain(args[1:], stdout)
	default:
		return fmt.Errorf("%w: %q", errUsage, args[0])
	}
}

// modelFlags are shared by every command that builds a network.
type modelFlags struct {
	depth      int
	classes    int
	noTop      bool
	configPath string
}

func (m *modelFlags) register(fs *flag.FlagSet, defaultDepth, defaultClasses int) {
	fs.IntVar(&m.depth, "depth", defaultDepth, fmt.Sprintf("preset depth %v", resnet.Depths()))
	fs.IntVar(&m.classes, "classes", defaultClasses, "number of output classes")
	fs.BoolVar(&m.noTop, "no-top", false, "drop the pooling and classification head")
	fs.StringVar(&m.configPath, "config", "", "YAML network config (overrides -depth, -classes and -no-top)")
}

func (m *modelFlags) config() (resnet.Config, error) {
	if m.configPath != "" {
		return resnet.LoadConfig(m.configPath)
	}
	arch, err := resnet.Preset(m.depth)
	if err != nil {
		return resnet.Config{}, err
	}
	return arch.Config(m.classes, !m.noTop), nil
}

func build[B tensor.Backend](m *modelFlags, backend B) (*resnet.Network[B], error) {
	cfg, err := m.config()
	if err != nil {
		return nil, err
	}
	return resnet.New(cfg, backend)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runSummary(args []string, stdout io.Writer) error {
	var model modelFlags
	fs := newFlagSet("summary")
	model.register(fs, 50, resnet.DefaultNumClasses)
	if err := fs.Parse(args); err != nil {
		return err
	}

	net, err := build(&model, cpu.New())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, renderSummary(resnet.Summarize(net)))
	return nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
)

func renderSummary(s resnet.Summary) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0 || col == 4:
				return cellStyle
			default:
				return numberStyle
			}
		}).
		Headers("section", "blocks", "stride", "channels", "adapter", "params")

	for _, sec := range s.Sections {
		adapter := ""
		if sec.Downsample {
			adapter = "yes"
		}
		t.Row(
			sec.Name,
			countOrDash(sec.Blocks),
			countOrDash(sec.Stride),
			fmt.Sprint(sec.OutChannels),
			adapter,
			formatCount(s.Params, sec.Params),
		)
	}

	title := titleStyle.Render(fmt.Sprintf("%s  block=%s layers=%v", s.Name, s.Block, s.Layers))
	footer := fmt.Sprintf("%d blocks, %s parameters", s.Blocks, formatCount(s.Params, s.Params))
	return strings.Join([]string{title, t.Render(), footer}, "\n")
}

func countOrDash(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprint(n)
}

// formatCount renders n with thousands separators, padded to the width of total.
func formatCount(total, n int) string {
	group := func(v int) string {
		s := fmt.Sprint(v)
		for i := len(s) - 3; i > 0; i -= 3 {
			s = s[:i] + "," + s[i:]
		}
		return s
	}
	return fmt.Sprintf("%*s", len(group(total)), group(n))
}

func runForward(args []string, stdout io.Writer) error {
	var model modelFlags
	fs := newFlagSet("forward")
	model.register(fs, 34, resnet.DefaultNumClasses)
	batch := fs.Int("batch", 1, "batch size")
	size := fs.Int("size", 224, "input height and width")
	weightsPath := fs.String("weights", "", "SafeTensors weights to load")
	if err := fs.Parse(args); err != nil {
		return err
	}

	backend := cpu.New()
	net, err := build(&model, backend)
	if err != nil {
		return err
	}
	if *weightsPath != "" {
		if err := resnet.LoadPretrained(net, *weightsPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "loaded %s\n", *weightsPath)
	}
	net.Eval()

	input := tensor.Shape{*batch, 3, *size, *size}
	want, err := net.OutputShape(input)
	if err != nil {
		return err
	}

	start := time.Now()
	out := net.Forward(tensor.Randn[float32](input, backend))
	elapsed := time.Since(start)

	if !out.Shape().Equal(want) {
		return fmt.Errorf("output shape %v, expected %v", out.Shape(), want)
	}
	fmt.Fprintf(stdout, "%s: %v -> %v in %v\n", net.Name(), input, out.Shape(), elapsed.Round(time.Millisecond))
	return nil
}

func runTrain(args []string, stdout io.Writer) error {
	var model modelFlags
	fs := newFlagSet("train")
	model.register(fs, 18, 10)
	steps := fs.Int("steps", 5, "number of SGD steps")
	batch := fs.Int("batch", 4, "batch size")
	size := fs.Int("size", 32, "input height and width")
	lr := fs.Float64("lr", 0.01, "learning rate")
	momentum := fs.Float64("momentum", 0.9, "SGD momentum")
	weightDecay := fs.Float64("weight-decay", 1e-4, "L2 weight decay")
	savePath := fs.String("save", "", "write the trained weights to this SafeTensors file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps <= 0 || *batch <= 0 {
		return fmt.Errorf("-steps and -batch must be positive")
	}

	backend := autodiff.New(cpu.New())
	net, err := build(&model, backend)
	if err != nil {
		return err
	}
	classes := net.Config().NumClasses

	images := tensor.Randn[float32](tensor.Shape{*batch, 3, *size, *size}, backend)
	labels := make([]int, *batch)
	for i := range labels {
		//nolint:gosec // random labels for a synthetic batch
		labels[i] = rand.IntN(classes)
	}

	trainer := resnet.NewTrainer(net, optim.SGDConfig{
		LR:          float32(*lr),
		Momentum:    float32(*momentum),
		WeightDecay: float32(*weightDecay),
	}, backend)

	fmt.Fprintf(stdout, "%s: %d parameters, batch %v\n", net.Name(), net.NumParameters(), images.Shape())
	for step := 1; step <= *steps; step++ {
		start := time.Now()
		result := trainer.Step(images, labels)
		fmt.Fprintf(stdout, "step %d  loss %.4f  acc %.2f  (%v)\n",
			step, result.Loss, result.Accuracy, time.Since(start).Round(time.Millisecond))
	}

	if *savePath != "" {
		if err := resnet.SaveWeights(net, *savePath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved %s\n", *savePath)
	}
	return nil
}
