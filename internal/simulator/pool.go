package simulator

import (
	"fmt"
	"strings"
)

// Scenario selects the response pool.
type Scenario string

const (
	ScenarioPass Scenario = "pass"
	ScenarioFail Scenario = "fail"
)

// ParseScenario accepts "pass" or "fail" in any case.
func ParseScenario(value string) (Scenario, error) {
	switch Scenario(strings.ToLower(strings.TrimSpace(value))) {
	case ScenarioPass, "":
		return ScenarioPass, nil
	case ScenarioFail:
		return ScenarioFail, nil
	default:
		return "", fmt.Errorf("unknown scenario %q (want pass or fail)", value)
	}
}

// Pool holds the lines a simulated device answers with. An empty DSNList
// means the SFC stops after the ack. The SFC final is always the carve result
// followed by PASS.
type Pool struct {
	Ack     string
	DSNList string
	Carve   string
}

var pools = map[Scenario]Pool{
	ScenarioPass: {
		Ack:     AckLine,
		DSNList: DSNListLine,
		Carve:   CarveLine,
	},
	ScenarioFail: {
		Ack:   "2505004562,H25101801031,FAIL",
		Carve: "2505004562,PF2AS04TE,PASSED=0,FAIL03",
	},
}

// PoolFor returns the responses for scenario. Unknown scenarios get the
// passing pool.
func PoolFor(scenario Scenario) Pool {
	if pool, ok := pools[scenario]; ok {
		return pool
	}
	return pools[ScenarioPass]
}
