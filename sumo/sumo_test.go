package sumo_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/ptlsim/demand"
	"github.com/tsinghua-fib-lab/ptlsim/entity"
	"github.com/tsinghua-fib-lab/ptlsim/flow"
	"github.com/tsinghua-fib-lab/ptlsim/sumo"
	"github.com/tsinghua-fib-lab/ptlsim/vtype"
)

const netXML = `<?xml version="1.0" encoding="UTF-8"?>
<net version="1.16">
    <edge id=":J1_0" function="internal">
        <lane id=":J1_0_0" index="0" speed="30.00" length="5.00" shape="999.00,0.00 1001.00,0.00"/>
    </edge>
    <edge id="E1" from="J1" to="J2" priority="-1">
        <lane id="E1_0" index="0" disallow="passenger" speed="30.00" length="1000.00" shape="1001.00,-4.80 2000.00,-4.80"/>
        <lane id="E1_1" index="1" speed="30.00" length="1000.00" shape="1001.00,-1.60 2000.00,-1.60"/>
    </edge>
    <edge id="E0" from="J0" to="J1" priority="-1">
        <lane id="E0_0" index="0" allow="bus private" speed="30.00" length="1000.00" shape="0.00,-8.00 999.00,-8.00"/>
        <lane id="E0_1" index="1" speed="30.00" length="1000.00" shape="0.00,-4.80 999.00,-4.80"/>
        <lane id="E0_2" index="2" disallow="bus" speed="30.00" length="1000.00" shape="0.00,-1.60 999.00,-1.60"/>
    </edge>
    <edge id="Ei1" from="Ji1" to="J1" priority="-1">
        <lane id="Ei1_0" index="0" speed="20.00" length="200.00" shape="800.00,-50.00 999.00,-10.00"/>
    </edge>
    <junction id="J1" type="priority" x="1000.00" y="0.00"/>
    <junction id="J2" type="dead_end" x="2000.00" y="0.00"/>
    <junction id="J0" type="dead_end" x="0.00" y="0.00"/>
    <junction id="Ji1" type="dead_end" x="800.00" y="-50.00"/>
    <junction id=":J1_w0" type="internal" x="-10.00" y="0.00"/>
</net>`

func TestParseNet(t *testing.T) {
	topo, err := sumo.ParseNet(strings.NewReader(netXML))
	require.NoError(t, err)
	assert.Equal(t, "J0", topo.Origin)
	assert.Equal(t, []string{"J2"}, topo.Destinations)
	assert.Equal(t, "E0", topo.EntryEdge)
	assert.Equal(t, 3, topo.Lanes)
	assert.Equal(t, 1, topo.Ramps)
	assert.ElementsMatch(t, []string{"E0_0", "E1_0"}, topo.RestrictedLanes)
	assert.Equal(t, []int{0}, topo.RestrictedIndex)
	assert.InDelta(t, 2000, topo.Length, 1e-9)
}

func TestParseNetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toy.net.xml")
	require.NoError(t, os.WriteFile(path, []byte(netXML), 0o644))
	topo, err := sumo.ParseNetFile(path)
	require.NoError(t, err)
	assert.Equal(t, "E0", topo.EntryEdge)

	_, err = sumo.ParseNetFile(filepath.Join(t.TempDir(), "missing.net.xml"))
	assert.Error(t, err)
	_, err = sumo.ParseNet(strings.NewReader("<net></net>"))
	assert.Error(t, err)
}

func corridorPlan(t *testing.T) *flow.Plan {
	t.Helper()
	topo, err := sumo.ParseNet(strings.NewReader(netXML))
	require.NoError(t, err)
	p, err := demand.NewToy(3000)
	require.NoError(t, err)
	rule := vtype.Rule{Threshold: 2, Kinds: []entity.VehicleKind{entity.KindAV, entity.KindHD}}
	plan, err := flow.NewPlan(p, topo, flow.Options{Seed: 42, AvRate: 0.5, Rule: rule, Corridor: true})
	require.NoError(t, err)
	return plan
}

func TestWriteRoutes(t *testing.T) {
	plan := corridorPlan(t)
	var sb strings.Builder
	require.NoError(t, sumo.WriteRoutes(&sb, plan))
	out := sb.String()

	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, `<vTypeDistribution id="PTLDist">`)
	assert.Contains(t, out, `<vTypeDistribution id="NOPTLDist">`)
	assert.Contains(t, out, `<vTypeDistribution id="busDist">`)
	assert.Contains(t, out, `vClass="private"`)
	assert.Contains(t, out, `id="HD_1" color="red"`)
	assert.Contains(t, out, `vClass="bus"`)
	assert.Contains(t, out, `fromJunction="J0" toJunction="J2"`)
	assert.Contains(t, out, `period="exp(`)
	assert.Contains(t, out, `departLane="0"`)
	assert.Contains(t, out, `departSpeed="max"`)
	assert.Equal(t, len(plan.Flows), strings.Count(out, "<flow "))
}

func TestWriteRoutesRejectsUnknownModel(t *testing.T) {
	plan := corridorPlan(t)
	plan.Flows[0].Model = "burst"
	var sb strings.Builder
	assert.Error(t, sumo.WriteRoutes(&sb, plan))
}

func TestWriteExperiment(t *testing.T) {
	plan := corridorPlan(t)
	dir := t.TempDir()
	files := sumo.NewFiles("toy.net.xml", filepath.Join(dir, "cfg"), filepath.Join(dir, "out"), "plus_3", 0.5)
	assert.Equal(t, filepath.Join(dir, "cfg", "av_0.5.sumocfg"), files.Config)
	assert.Equal(t, filepath.Join(dir, "out", "plus_3_tripinfo.xml"), files.TripInfo)
	require.NoError(t, sumo.WriteExperiment(files, plan))

	cfg, err := os.ReadFile(files.Config)
	require.NoError(t, err)
	assert.Contains(t, string(cfg), `<net-file value="toy.net.xml"></net-file>`)
	assert.Contains(t, string(cfg), `<route-files value="`+files.Routes+`"></route-files>`)
	assert.Contains(t, string(cfg), `<tripinfo-output value="`+files.TripInfo+`"></tripinfo-output>`)
	assert.Contains(t, string(cfg), `<seed value="42"></seed>`)

	add, err := os.ReadFile(files.Additional)
	require.NoError(t, err)
	assert.Contains(t, string(add), `<laneData id="lane_data" freq="60" file="`+files.Lanes+`"></laneData>`)

	_, err = os.Stat(files.Routes)
	assert.NoError(t, err)
}

func TestLocate(t *testing.T) {
	home := t.TempDir()
	_, err := sumo.Locate(home, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), filepath.Join(home, "bin"))

	name, gui := "sumo", "sumo-gui"
	if runtime.GOOS == "windows" {
		name, gui = name+".exe", gui+".exe"
	}
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", name), nil, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", gui), nil, 0o755))

	binary, err := sumo.Locate(home, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "bin", name), binary)
	binary, err = sumo.Locate(home, true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "bin", gui), binary)

	t.Setenv("SUMO_HOME", home)
	binary, err = sumo.Locate("", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "bin", name), binary)

	t.Setenv("SUMO_HOME", "")
	_, err = sumo.Locate("", false)
	assert.ErrorIs(t, err, sumo.ErrNoSumoHome)
}

func TestExpandBridge(t *testing.T) {
	args, err := sumo.ExpandBridge(
		[]string{"python", "bridge.py", "--sumo={binary}", "-c", "{cfg}", "--listen", "{addr}"},
		"/opt/sumo/bin/sumo", "a.sumocfg", "127.0.0.1:9000",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "bridge.py", "--sumo=/opt/sumo/bin/sumo", "-c", "a.sumocfg", "--listen", "127.0.0.1:9000"}, args)

	_, err = sumo.ExpandBridge(nil, "", "", "")
	assert.ErrorIs(t, err, sumo.ErrEmptyBridge)
}

func TestStartBridge(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a posix shell")
	}
	b, err := sumo.StartBridge(context.Background(), []string{"sh", "-c", "echo {cfg} {addr}"}, "", "x.sumocfg", ":0")
	require.NoError(t, err)
	<-b.Done()
	assert.NoError(t, b.Err())
	assert.NoError(t, b.Stop())

	b, err = sumo.StartBridge(context.Background(), []string{"sleep", "30"}, "", "", "")
	require.NoError(t, err)
	require.NoError(t, b.Stop())
	assert.NoError(t, b.Stop())
	<-b.Done()

	b, err = sumo.StartBridge(context.Background(), []string{"sh", "-c", "exit 3"}, "", "", "")
	require.NoError(t, err)
	<-b.Done()
	err = b.Stop()
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Equal(t, err, b.Stop())
}
