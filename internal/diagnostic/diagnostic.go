// Package diagnostic holds the in-process appliance knowledge base used by
// the phone agent: common symptoms, diagnostic questions to ask the caller,
// and troubleshooting steps keyed by a closed set of appliance tags.
//
// All lookups are pure functions over fixed tables. Free-form caller input
// is mapped onto the tag set with [Normalize] before consulting the tables;
// unknown appliances and symptoms fall back to the generic checklist.
package diagnostic

import (
	"slices"
	"strings"
)

// Supported appliance tags. [Normalize] maps caller phrasing onto these.
const (
	Washer          = "washer"
	Dryer           = "dryer"
	Refrigerator    = "refrigerator"
	Dishwasher      = "dishwasher"
	Oven            = "oven"
	Microwave       = "microwave"
	HVAC            = "hvac"
	GarbageDisposal = "garbage_disposal"
	WaterHeater     = "water_heater"
	Freezer         = "freezer"
)

// Appliances lists every supported appliance tag.
var Appliances = []string{
	Washer, Dryer, Refrigerator, Dishwasher, Oven,
	Microwave, HVAC, GarbageDisposal, WaterHeater, Freezer,
}

// Severity levels understood by [ShouldScheduleTechnician].
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// synonyms maps lowercased caller phrasing onto appliance tags. Inputs are
// matched whole, after trimming, so "my washer" will not resolve here.
var synonyms = map[string]string{
	"washer":          Washer,
	"washing machine": Washer,
	"clothes washer":  Washer,
	"laundry machine": Washer,

	"dryer":         Dryer,
	"clothes dryer": Dryer,
	"tumble dryer":  Dryer,

	"refrigerator":  Refrigerator,
	"fridge":        Refrigerator,
	"refridgerator": Refrigerator, // common misspelling

	"dishwasher":  Dishwasher,
	"dish washer": Dishwasher,

	"oven":    Oven,
	"stove":   Oven,
	"range":   Oven,
	"cooktop": Oven,

	"microwave":  Microwave,
	"micro wave": Microwave,

	"hvac":             HVAC,
	"ac":               HVAC,
	"air conditioner":  HVAC,
	"air conditioning": HVAC,
	"heat pump":        HVAC,
	"furnace":          HVAC,
	"heating":          HVAC,
	"central air":      HVAC,

	"garbage disposal": GarbageDisposal,
	"disposal":         GarbageDisposal,
	"water heater":     WaterHeater,
	"hot water heater": WaterHeater,
	"freezer":          Freezer,
}

// remedy pairs a known symptom with its troubleshooting steps. Remedies are
// kept in a slice so that [Steps] matches them in a stable order.
type remedy struct {
	symptom string
	steps   []string
}

type applianceKB struct {
	symptoms  []string
	questions []string
	remedies  []remedy
}

// defaultSteps is the generic checklist for appliances or symptoms without a
// dedicated table entry.
var defaultSteps = []string{
	"Ensure the appliance is properly plugged in and receiving power",
	"Check if the circuit breaker hasn't tripped",
	"Look for any error codes or warning lights",
	"Try unplugging the appliance for 1 minute, then plugging it back in",
	"Review the user manual for troubleshooting guidance",
}

var knowledge = map[string]applianceKB{
	Washer: {
		symptoms: []string{
			"won't start",
			"won't spin",
			"not draining",
			"leaking water",
			"making loud noise",
			"shaking or vibrating",
			"door won't open",
			"not filling with water",
			"clothes still wet after cycle",
			"error code displayed",
		},
		questions: []string{
			"Is the washer plugged in and is the outlet working?",
			"Is the water supply turned on?",
			"Is the door or lid properly closed?",
			"What cycle were you trying to run?",
			"Are there any error codes displayed?",
			"How old is the washing machine?",
			"When did this problem first start?",
			"Is it a top-loader or front-loader?",
		},
		remedies: []remedy{
			{"won't start", []string{
				"Check that the washer is plugged in and the outlet has power",
				"Ensure the door or lid is completely closed and latched",
				"Check if the water supply valves are open",
				"Try resetting by unplugging for 1 minute, then plugging back in",
				"Check if the child lock feature is enabled",
			}},
			{"not draining", []string{
				"Check the drain hose for kinks or clogs",
				"Clean the drain pump filter (usually at the front bottom)",
				"Ensure the drain hose height is correct (not too high)",
				"Check for small items that may have blocked the pump",
			}},
			{"leaking water", []string{
				"Check door seal for damage or debris",
				"Inspect inlet hoses for cracks or loose connections",
				"Don't overload the washer",
				"Use the correct amount of HE detergent if required",
				"Check the drain hose connection",
			}},
			{"making loud noise", []string{
				"Check if the washer is level using a spirit level",
				"Ensure shipping bolts have been removed (new washers)",
				"Check for foreign objects in the drum",
				"Avoid overloading the washer",
				"Check if anything is caught between the drum and tub",
			}},
		},
	},
	Dryer: {
		symptoms: []string{
			"won't start",
			"not heating",
			"takes too long to dry",
			"making loud noise",
			"drum not spinning",
			"shuts off too soon",
			"burning smell",
			"clothes too hot",
		},
		questions: []string{
			"Is it a gas or electric dryer?",
			"Is the dryer plugged in?",
			"When did you last clean the lint trap?",
			"Is the vent hose connected and clear?",
			"What heat setting are you using?",
			"How old is the dryer?",
			"Are there any error codes?",
		},
		remedies: []remedy{
			{"not heating", []string{
				"Check that the dryer is properly plugged in (electric needs 240V)",
				"For gas dryers, ensure the gas supply valve is open",
				"Clean the lint trap thoroughly",
				"Check and clean the dryer vent duct",
				"Make sure the vent isn't kinked or blocked",
			}},
			{"takes too long to dry", []string{
				"Clean the lint trap before every load",
				"Check the vent system for blockages",
				"Don't overload the dryer",
				"Make sure clothes are properly spun in the washer first",
				"Check that the vent flap outside opens when dryer is running",
			}},
			{"making loud noise", []string{
				"Check for coins or objects in the drum",
				"Ensure the dryer is level",
				"Check if the drum rollers need replacement",
				"Listen for where the noise is coming from",
			}},
		},
	},
	Refrigerator: {
		symptoms: []string{
			"not cooling",
			"too cold",
			"making loud noise",
			"leaking water",
			"ice maker not working",
			"frost buildup",
			"water dispenser not working",
			"running constantly",
			"not running at all",
		},
		questions: []string{
			"Is the refrigerator plugged in?",
			"What temperature is it set to?",
			"How long has it been having issues?",
			"Is the freezer working properly?",
			"Are the condenser coils dirty?",
			"Is there frost buildup inside?",
			"Can you hear the compressor running?",
		},
		remedies: []remedy{
			{"not cooling", []string{
				"Check the temperature settings (should be 37°F fridge, 0°F freezer)",
				"Ensure vents inside aren't blocked by food items",
				"Clean the condenser coils (usually at the back or bottom)",
				"Check that the door seals are clean and sealing properly",
				"Make sure there's clearance around the unit for airflow",
			}},
			{"ice maker not working", []string{
				"Check that the ice maker is turned on",
				"Ensure the water supply line is connected and valve is open",
				"Check the water filter - replace if older than 6 months",
				"Make sure the freezer is cold enough (0°F or below)",
				"Check for ice jams in the mechanism",
			}},
			{"leaking water", []string{
				"Check if the defrost drain is clogged",
				"Inspect the water supply line for leaks",
				"Make sure the fridge is level (slightly higher in front)",
				"Check the drain pan under the unit",
			}},
		},
	},
	Dishwasher: {
		symptoms: []string{
			"not cleaning dishes",
			"not draining",
			"leaking",
			"won't start",
			"making noise",
			"not drying dishes",
			"door won't latch",
			"bad odor",
		},
		questions: []string{
			"Is the dishwasher getting water?",
			"Are you using the right detergent?",
			"Is the drain clear?",
			"How are you loading the dishes?",
			"What cycle are you using?",
			"When was it last cleaned?",
		},
		remedies: []remedy{
			{"not cleaning dishes", []string{
				"Run hot water at the sink before starting the dishwasher",
				"Don't pre-rinse dishes, but scrape off large food particles",
				"Check that spray arms can spin freely",
				"Clean the filter at the bottom of the dishwasher",
				"Use fresh detergent and rinse aid",
				"Don't overload - water needs to reach all dishes",
			}},
			{"not draining", []string{
				"Check and clean the filter and drain basket",
				"Ensure the garbage disposal knockout plug is removed",
				"Check the drain hose for kinks",
				"Run the garbage disposal before the dishwasher",
				"Clean the air gap if you have one",
			}},
			{"bad odor", []string{
				"Run a cleaning cycle with dishwasher cleaner",
				"Clean the filter and drain area",
				"Wipe down the door gasket",
				"Leave the door slightly open between uses",
			}},
		},
	},
	Oven: {
		symptoms: []string{
			"not heating",
			"uneven cooking",
			"temperature inaccurate",
			"burners won't ignite",
			"self-clean not working",
			"door won't open",
			"display not working",
		},
		questions: []string{
			"Is it a gas or electric oven?",
			"Which part isn't working - oven, stovetop, or both?",
			"Is the oven heating at all or just not reaching temperature?",
			"When did you last calibrate the temperature?",
			"Are there any error codes?",
		},
		remedies: []remedy{
			{"not heating", []string{
				"Check that the oven is properly plugged in",
				"For gas ovens, ensure the gas supply is on",
				"Try the broiler to see if it's just the bake element",
				"Check if the oven light comes on",
				"Make sure the oven isn't in self-clean mode",
			}},
			{"uneven cooking", []string{
				"Use an oven thermometer to check actual temperature",
				"Avoid using dark pans which absorb more heat",
				"Allow proper air circulation - don't cover racks with foil",
				"Calibrate the oven temperature if needed",
				"Rotate dishes halfway through cooking",
			}},
			{"burners won't ignite", []string{
				"Clean the burner caps and grates",
				"Make sure burner caps are properly seated",
				"Clean the igniter with a toothbrush",
				"Check if other burners work to isolate the issue",
			}},
		},
	},
	HVAC: {
		symptoms: []string{
			"not cooling",
			"not heating",
			"weak airflow",
			"strange noises",
			"bad smell",
			"constantly running",
			"short cycling",
			"high energy bills",
		},
		questions: []string{
			"Is it a central system, mini-split, or window unit?",
			"When was the filter last changed?",
			"Is the thermostat set correctly?",
			"Are all vents open?",
			"Is the outdoor unit running?",
			"How old is the system?",
		},
		remedies: []remedy{
			{"not cooling", []string{
				"Check and replace the air filter if dirty",
				"Make sure the thermostat is set to cool and below room temp",
				"Check that the outdoor unit isn't blocked by debris",
				"Ensure all vents inside are open and unobstructed",
				"Check if the outdoor unit fan is running",
				"Check circuit breakers for both indoor and outdoor units",
			}},
			{"weak airflow", []string{
				"Replace the air filter",
				"Check if vents are open and unblocked",
				"Have ductwork inspected for leaks",
				"Make sure the blower fan is running",
			}},
			{"strange noises", []string{
				"Rattling might mean loose panels - check and tighten",
				"Squealing could indicate belt issues",
				"Clicking at startup is normal; continuous clicking is not",
				"Banging might indicate a broken component",
			}},
		},
	},
}

// Normalize maps free-form caller input onto a supported appliance tag.
// Matching is whole-phrase after lowercasing and trimming, so "Washing
// Machine" resolves while "my washing machine" does not. ok is false for
// anything outside the synonym table.
func Normalize(raw string) (tag string, ok bool) {
	tag, ok = synonyms[strings.TrimSpace(strings.ToLower(raw))]
	return tag, ok
}

// CommonSymptoms returns the known symptoms for an appliance tag, or nil for
// appliances without a table entry.
func CommonSymptoms(appliance string) []string {
	return slices.Clone(knowledge[appliance].symptoms)
}

// Questions returns the diagnostic questions an agent should work through
// for an appliance tag, or nil for appliances without a table entry.
func Questions(appliance string) []string {
	return slices.Clone(knowledge[appliance].questions)
}

// DefaultSteps returns the generic troubleshooting checklist used when no
// appliance or symptom entry matches.
func DefaultSteps() []string {
	return slices.Clone(defaultSteps)
}

// Steps returns the troubleshooting steps for a symptom as described by the
// caller. A remedy matches when its symptom key contains the description or
// the description contains the key; the first match in table order wins.
// Unknown appliances and unmatched symptoms get [DefaultSteps].
func Steps(appliance, symptom string) []string {
	symptom = strings.ToLower(symptom)
	for _, r := range knowledge[appliance].remedies {
		if strings.Contains(symptom, r.symptom) || strings.Contains(r.symptom, symptom) {
			return slices.Clone(r.steps)
		}
	}
	return slices.Clone(defaultSteps)
}

// MatchSymptom scores the caller's description against the appliance's known
// symptoms by word overlap and returns the best match. The score is the
// fraction of the symptom's distinct words present in the description; ties
// keep the earlier symptom. An empty symptom and score 0 mean no overlap.
func MatchSymptom(appliance, description string) (symptom string, score float64) {
	descWords := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(description)) {
		descWords[w] = true
	}

	for _, s := range knowledge[appliance].symptoms {
		symWords := map[string]bool{}
		for _, w := range strings.Fields(strings.ToLower(s)) {
			symWords[w] = true
		}
		overlap := 0
		for w := range symWords {
			if descWords[w] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		if sc := float64(overlap) / float64(len(symWords)); sc > score {
			score = sc
			symptom = s
		}
	}
	return symptom, score
}

// ShouldScheduleTechnician reports whether a technician visit should be
// recommended after the given troubleshooting attempts. Resolved issues
// never need a visit; high-severity symptoms always do; otherwise two or
// more attempted steps without resolution tip the recommendation.
func ShouldScheduleTechnician(attempted []string, resolved bool, severity string) bool {
	if resolved {
		return false
	}
	if severity == SeverityHigh {
		return true
	}
	return len(attempted) >= 2
}

// Summary renders a diagnostic session as a briefing block for the assigned
// technician. results maps attempted steps to their reported outcome; steps
// without an entry are marked "Unknown result".
func Summary(appliance string, symptoms, tried []string, results map[string]string) string {
	parts := []string{
		"Appliance: " + displayName(appliance),
		"\nReported Symptoms:",
	}
	for _, s := range symptoms {
		parts = append(parts, "  - "+s)
	}
	if len(tried) > 0 {
		parts = append(parts, "\nTroubleshooting Steps Attempted:")
		for _, step := range tried {
			result, ok := results[step]
			if !ok {
				result = "Unknown result"
			}
			parts = append(parts, "  - "+step+": "+result)
		}
	}
	return strings.Join(parts, "\n")
}

// displayName turns a tag like "garbage_disposal" into "Garbage Disposal".
func displayName(tag string) string {
	words := strings.Split(strings.ReplaceAll(tag, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

