package wallaroo

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/go-logr/logr/funcr"
	"github.com/birdayz/wallaroo/kdag"
	"github.com/birdayz/wallaroo/kserde"
	"github.com/birdayz/wallaroo/ktransport"
)

func celsiusPipeline() Pipeline {
	return celsiusSource(9000).To(multiply).To(add).ToSink(fahrenheitSink(9002))
}

// runChain feeds the framed input through the root chain of app, invoking
// every stage by name, the way an engine would.
func runChain(t *testing.T, app *Application, input []byte) []byte {
	t.Helper()
	chain := app.Descriptor.Nodes[app.Descriptor.Root]

	src, ok := app.Registry.Lookup(chain[0].Transports()[0].Codec)
	assert.True(t, ok)

	var out bytes.Buffer
	r := bytes.NewReader(input)
	for {
		v, err := kserde.Next[any](r, src)
		if errors.Is(err, io.EOF) {
			return out.Bytes()
		}
		assert.NoError(t, err)

		values := []any{v}
		for _, s := range chain[1:] {
			switch s.Kind() {
			case kdag.StageComputation:
				c, ok := app.Registry.Lookup(s.Name())
				assert.True(t, ok)
				var next []any
				for _, v := range values {
					res, err := c.Compute(v, nil)
					assert.NoError(t, err)
					next = append(next, res...)
				}
				values = next
			case kdag.StageSink:
				enc, ok := app.Registry.Lookup(s.Transports()[0].Codec)
				assert.True(t, ok)
				for _, v := range values {
					b, err := enc.Encode(v)
					assert.NoError(t, err)
					out.Write(b)
				}
			}
		}
	}
}

func TestCelsiusToFahrenheit(t *testing.T) {
	app, err := Build("Celsius to Fahrenheit", celsiusPipeline(), WithLog(NullLogger()))
	assert.NoError(t, err)

	input := []byte{0x00, 0x00, 0x00, 0x04, 0x42, 0xC8, 0x00, 0x00}
	assert.Equal(t, "212.000000\n", string(runChain(t, app, input)))

	// Two frames, -40 and 0.
	input = []byte{
		0x00, 0x00, 0x00, 0x04, 0xC2, 0x20, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, "-40.000000\n32.000000\n", string(runChain(t, app, input)))

	// Body temperature is where single precision arithmetic drifts.
	input = []byte{0x00, 0x00, 0x00, 0x04, 0x42, 0x14, 0x00, 0x00}
	assert.Equal(t, "98.600000\n", string(runChain(t, app, input)))
}

func TestCelsiusPartialFrame(t *testing.T) {
	app, err := Build("Celsius to Fahrenheit", celsiusPipeline())
	assert.NoError(t, err)
	src, _ := app.Registry.Lookup("celsius decoder")

	full := []byte{0x00, 0x00, 0x00, 0x04, 0x42, 0xC8, 0x00, 0x00}
	for n := 0; n < len(full); n++ {
		_, err := kserde.Next[any](bytes.NewReader(full[:n]), src)
		assert.Error(t, err)
		if n >= 4 {
			assert.IsError(t, err, ErrProtocol)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Run("incomplete", func(t *testing.T) {
		_, err := Build("app", celsiusSource(9000).To(multiply))
		assert.IsError(t, err, ErrMisuse)
		assert.IsError(t, err, kdag.ErrIncompletePipeline)
	})

	t.Run("unnamed", func(t *testing.T) {
		_, err := Build("", celsiusPipeline())
		assert.IsError(t, err, ErrConfiguration)
	})

	t.Run("zero pipeline", func(t *testing.T) {
		_, err := Build("app", Pipeline{})
		assert.IsError(t, err, ErrMisuse)
	})

	t.Run("shared registry", func(t *testing.T) {
		shared := NewRegistry()
		_, err := Build("a", celsiusPipeline(), WithRegistry(shared))
		assert.NoError(t, err)
		_, err = Build("b", celsiusSource(9100).To(multiply).ToSink(fahrenheitSink(9102)), WithRegistry(shared))
		assert.NoError(t, err)
		assert.Equal(t, []string{"add 32", "celsius decoder", "fahrenheit encoder", "multiply by 1.8"}, shared.Names())

		other := celsiusSource(9000).
			To(NewComputation("add 32", func(v float64) (float64, error) { return v + 33, nil })).
			ToSink(fahrenheitSink(9002))
		_, err = Build("c", other, WithRegistry(shared))
		assert.IsError(t, err, ErrConfiguration)
	})

	t.Run("logs", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		_, err := Build("logged", celsiusPipeline(), WithLog(log))
		assert.NoError(t, err)
		assert.Contains(t, buf.String(), "app=logged")
	})

	t.Run("logr", func(t *testing.T) {
		var lines []string
		log := funcr.New(func(prefix, args string) {
			lines = append(lines, args)
		}, funcr.Options{Verbosity: 4})
		_, err := Build("logged", celsiusPipeline(), WithLogr(log))
		assert.NoError(t, err)
		assert.Equal(t, 1, len(lines))
		assert.Contains(t, lines[0], `"app"="logged"`)
	})
}

func TestLoad(t *testing.T) {
	app, err := Build("Celsius to Fahrenheit", celsiusPipeline())
	assert.NoError(t, err)
	data, err := app.MarshalBinary()
	assert.NoError(t, err)

	// The receiving process registers the same components by itself.
	r := NewRegistry()
	for _, e := range []*Entry{celsiusDecoder, multiply, add, fahrenheitEncoder} {
		r.MustRegister(e)
	}
	loaded, err := Load(data, r)
	assert.NoError(t, err)
	assert.Equal(t, app.Descriptor, loaded.Descriptor)

	input := []byte{0x00, 0x00, 0x00, 0x04, 0x42, 0xC8, 0x00, 0x00}
	assert.Equal(t, "212.000000\n", string(runChain(t, loaded, input)))

	_, err = Load(data, NewRegistry())
	assert.IsError(t, err, ErrConfiguration)

	_, err = Load([]byte{0xff}, r)
	assert.IsError(t, err, ErrConfiguration)
}

func TestMergeScenarioDescriptor(t *testing.T) {
	a := celsiusSource(9000).To(multiply)
	b := Source("second", TCPSourceConfig("127.0.0.1", 9001, celsiusDecoder)).To(add)

	app, err := Build("merge", a.Merge(b).ToSink(fahrenheitSink(9002)))
	assert.NoError(t, err)

	data, err := app.MarshalBinary()
	assert.NoError(t, err)
	var desc kdag.Application
	assert.NoError(t, desc.UnmarshalBinary(data))

	assert.Equal(t, "merge", desc.Name)
	assert.Equal(t, 2, desc.Root)
	assert.Equal(t, []int{0, 1}, desc.Edges[desc.Root])
	assert.Equal(t, "celsius", desc.Nodes[0][0].Name())
	assert.Equal(t, "second", desc.Nodes[1][0].Name())
	assert.Equal(t, kdag.StageMerge, desc.Nodes[2][0].Kind())
	assert.Equal(t, kdag.StageSink, desc.Nodes[2][1].Kind())
}

func TestMergeTerminatedDescriptor(t *testing.T) {
	a := celsiusSource(9000).To(multiply).ToSink(fahrenheitSink(9002))
	b := Source("second", TCPSourceConfig("127.0.0.1", 9001, celsiusDecoder)).To(add).ToSink(fahrenheitSink(9003))

	app, err := Build("merge", a.Merge(b))
	assert.NoError(t, err)

	data, err := app.MarshalBinary()
	assert.NoError(t, err)
	var desc kdag.Application
	assert.NoError(t, desc.UnmarshalBinary(data))

	assert.Equal(t, 2, desc.Root)
	assert.Equal(t, []int{0, 1}, desc.Edges[desc.Root])
	assert.Equal(t, kdag.StageSink, desc.Nodes[0][2].Kind())
	assert.Equal(t, kdag.StageSink, desc.Nodes[1][2].Kind())
	assert.Equal(t, 1, len(desc.Nodes[2]))
	assert.Equal(t, kdag.StageMerge, desc.Nodes[2][0].Kind())
}

func TestKafkaTopics(t *testing.T) {
	brokers := []ktransport.Broker{{Host: "localhost", Port: ktransport.DefaultKafkaPort}}
	p := Source("celsius", KafkaSourceConfig(ktransport.NewKafkaSource("celsius", brokers), celsiusDecoder)).
		To(multiply).
		ToSinks(
			KafkaSinkConfig(ktransport.NewKafkaSink("fahrenheit", brokers), fahrenheitEncoder),
			KafkaSinkConfig(ktransport.NewKafkaSink("celsius", brokers), fahrenheitEncoder),
			DefaultKafkaSinkConfig(fahrenheitEncoder, ""),
			fahrenheitSink(9002),
		)
	app, err := Build("kafka", p)
	assert.NoError(t, err)
	assert.Equal(t, []string{"celsius", "fahrenheit"}, app.KafkaTopics())

	app, err = Build("tcp", celsiusPipeline())
	assert.NoError(t, err)
	assert.Zero(t, app.KafkaTopics())
}
