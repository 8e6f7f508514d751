package commands

import (
	"context"
	"fmt"

	"github.com/radfares/nurseRN-sub000/internal/pipeline"
	"github.com/radfares/nurseRN-sub000/internal/registry"
)

// scaffoldAgent is a deterministic direct-run collaborator used for dry
// runs. It produces templated phase output so the full pipeline, gates, and
// persistence can be exercised without a model backend. Deployments embed
// the library and register their own collaborators instead.
type scaffoldAgent struct {
	name string
	run  func(query string) *registry.RunOutput
}

func (a *scaffoldAgent) Name() string                    { return a.name }
func (a *scaffoldAgent) Capability() registry.Capability { return registry.CapabilityDirectRun }
func (a *scaffoldAgent) Run(ctx context.Context, query string, opts map[string]string) (*registry.RunOutput, error) {
	return a.run(query), nil
}

// registerScaffoldAgents installs one scaffold collaborator per phase name.
func registerScaffoldAgents(reg *registry.Registry, names []string) error {
	builders := []func(query string) *registry.RunOutput{
		scaffoldPlan, scaffoldSearch, scaffoldValidate, scaffoldText("Synthesis"), scaffoldText("Analysis"),
	}
	for i, name := range names {
		// A config may assign one collaborator to several phases.
		if _, ok := reg.Get(name); ok {
			continue
		}
		if err := reg.Register(&scaffoldAgent{name: name, run: builders[i]}); err != nil {
			return err
		}
	}
	return nil
}

func scaffoldPlan(query string) *registry.RunOutput {
	return &registry.RunOutput{
		Content: fmt.Sprintf("P: the population named in the request. I: the intervention under study. "+
			"C: current standard practice. O: the primary clinical outcome. T: over a defined follow-up period.\n\nRequest: %s", query),
	}
}

func scaffoldSearch(query string) *registry.RunOutput {
	return &registry.RunOutput{
		Content: "Search scaffold: no literature backend is configured, so no primary studies were " +
			"retrieved. Register a search collaborator with database access to replace this output.",
	}
}

func scaffoldValidate(query string) *registry.RunOutput {
	return &registry.RunOutput{
		Content: "Validation scaffold: no citations were present in the search output, so there is " +
			"nothing to verify. A real validation collaborator checks each citation against its source.",
		Metadata: map[string]string{
			pipeline.MetaCitedIDs:    "",
			pipeline.MetaVerifiedIDs: "",
		},
	}
}

func scaffoldText(phase string) func(query string) *registry.RunOutput {
	return func(query string) *registry.RunOutput {
		return &registry.RunOutput{
			Content: fmt.Sprintf("%s scaffold: produced from templated upstream output. Replace the "+
				"scaffold collaborators with real ones to obtain a usable evidence appraisal.", phase),
		}
	}
}
