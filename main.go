package main

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r1"

	"github.com/samuelfneumann/goppo/agent/nonlinear/continuous/ppo"
	"github.com/samuelfneumann/goppo/environment"
	"github.com/samuelfneumann/goppo/environment/classiccontrol/pendulum"
	"github.com/samuelfneumann/goppo/experiment"
	"github.com/samuelfneumann/goppo/experiment/checkpointer"
	"github.com/samuelfneumann/goppo/experiment/trackers"
	"github.com/samuelfneumann/goppo/initwfn"
	"github.com/samuelfneumann/goppo/network"
	"github.com/samuelfneumann/goppo/solver"
	"github.com/samuelfneumann/goppo/utils/plotutils"
)

func main() {
	var seed uint64 = 192382

	// Create the pendulum swing-up environment
	angleBounds := r1.Interval{Min: -pendulum.AngleBound,
		Max: pendulum.AngleBound}
	speedBounds := r1.Interval{Min: -1.0, Max: 1.0}

	s := environment.NewUniformStarter([]r1.Interval{
		angleBounds,
		speedBounds,
	}, seed)
	task := pendulum.NewSwingUp(s, 200)
	env, _ := pendulum.NewContinuous(task, 0.99)

	// Weight initializer and solver shared by the actor and critic
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		log.Fatalf("could not create weight initializer: %v", err)
	}

	adam, err := solver.NewDefaultAdam(3e-4, 64)
	if err != nil {
		log.Fatalf("could not create solver: %v", err)
	}

	config := ppo.Config{
		PolicyLayers:      []int{64, 64},
		PolicyBiases:      []bool{true, true},
		PolicyActivations: []*network.Activation{network.TanH(),
			network.TanH()},

		CriticLayers:      []int{64, 64},
		CriticBiases:      []bool{true, true},
		CriticActivations: []*network.Activation{network.TanH(),
			network.TanH()},

		InitWFn: init,
		Solver:  adam,

		BufferSize:  2048,
		BatchSize:   64,
		Epochs:      10,
		Gamma:       0.99,
		Lambda:      0.95,
		Epsilon:     0.2,
		ValueCoeff:  0.5,
		MaxGradNorm: 0.5,
		ClipValueFn: false,
		InitialStd:  1.0,

		Seed: seed,
	}

	agent, err := ppo.New(env, config)
	if err != nil {
		log.Fatalf("could not create agent: %v", err)
	}

	// Track episodic returns and periodically checkpoint the learned
	// networks
	t := []trackers.Tracker{trackers.NewReturn("./data.bin")}
	c := []checkpointer.Checkpointer{
		checkpointer.NewNStep(50_000, agent,
			checkpointer.FilenameEnumerator(0, "./saved_network/checkpoint",
				"")),
	}

	e := experiment.NewOnline(env, agent, 200_000, t, c)
	if err := e.Run(); err != nil {
		log.Fatalf("experiment failed: %v", err)
	}
	e.Save()

	// Persist the final actor and critic
	if err := agent.Save("./saved_network"); err != nil {
		log.Fatalf("could not save networks: %v", err)
	}
	if err := agent.Close(); err != nil {
		log.Fatalf("could not close agent: %v", err)
	}

	// Plot the learning curve
	data := trackers.LoadData("./data.bin")
	if len(data) >= 2 {
		err := plotutils.Line(data, "Episodic Return", "./rewards.png")
		if err != nil {
			log.Fatalf("could not plot learning curve: %v", err)
		}
	}

	last := len(data)
	if last > 10 {
		last = 10
	}
	fmt.Println("Final episodic returns:", data[len(data)-last:])
}
