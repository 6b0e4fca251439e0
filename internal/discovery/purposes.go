package discovery

// purposes holds the per-purpose heuristic tables. Pattern order within each
// list is priority order; earlier entries are strictly preferred. These are
// tuned against the carrier markup we have seen, not a schema the carriers
// promise to keep.
var purposes = map[string]heuristic{
	"zipcode": {
		attrs:     []string{"name*=zip", "id*=zip", "placeholder*=zip", "aria-label*=zip", "autocomplete=postal-code"},
		labels:    []string{"zip code", "zipcode", "postal code"},
		types:     []string{"tel"},
		maxLength: "5",
	},
	"firstname": {
		attrs:  []string{"name*=firstname", "name*=first_name", "name*=first-name", "id*=firstname", "id*=first_name", "placeholder*=first name", "autocomplete=given-name"},
		labels: []string{"first name"},
	},
	"lastname": {
		attrs:  []string{"name*=lastname", "name*=last_name", "name*=last-name", "id*=lastname", "id*=last_name", "placeholder*=last name", "autocomplete=family-name"},
		labels: []string{"last name"},
	},
	"email": {
		attrs:  []string{"type=email", "name*=email", "id*=email", "placeholder*=email", "autocomplete=email"},
		labels: []string{"email address", "e-mail"},
		types:  []string{"email"},
	},
	"phone": {
		attrs:  []string{"type=tel", "name*=phone", "id*=phone", "placeholder*=phone", "autocomplete=tel"},
		labels: []string{"phone number", "mobile number"},
		types:  []string{"tel"},
	},
	"date_of_birth": {
		attrs:     []string{"name*=birth", "name*=dob", "id*=birth", "id*=dob", "placeholder*=mm/dd", "autocomplete=bday"},
		labels:    []string{"date of birth", "birthdate"},
		types:     []string{"date"},
		maxLength: "10",
	},
	"address": {
		attrs:  []string{"name*=address1", "name*=street", "name*=address", "id*=address", "placeholder*=street address", "autocomplete=address-line1"},
		labels: []string{"street address", "mailing address"},
	},
	"apt_unit": {
		attrs:  []string{"name*=address2", "name*=apt", "name*=unit", "id*=apt", "placeholder*=apt", "autocomplete=address-line2"},
		labels: []string{"apt", "unit #", "suite"},
	},
	"city": {
		attrs:  []string{"name*=city", "id*=city", "placeholder*=city", "autocomplete=address-level2"},
		labels: []string{"city"},
	},
	"state": {
		attrs:  []string{"name*=state", "id*=state", "autocomplete=address-level1"},
		labels: []string{"state"},
	},
	"gender": {
		attrs:  []string{"name*=gender", "id*=gender", "name*=sex"},
		labels: []string{"gender"},
	},
	"marital_status": {
		attrs:  []string{"name*=marital", "id*=marital", "name*=maritalstatus"},
		labels: []string{"marital status"},
	},
	"home_ownership": {
		attrs:  []string{"name*=residence", "name*=ownership", "id*=residence", "id*=homeowner"},
		labels: []string{"own or rent", "residence type"},
	},
	"vehicle_year": {
		attrs:  []string{"name*=vehicleyear", "name*=year", "id*=vehicleyear", "id*=year"},
		labels: []string{"vehicle year", "model year"},
	},
	"vehicle_make": {
		attrs:  []string{"name*=make", "id*=make"},
		labels: []string{"vehicle make", "make"},
	},
	"vehicle_model": {
		attrs:  []string{"name*=model", "id*=model"},
		labels: []string{"vehicle model", "model"},
	},
	"vehicle_ownership": {
		attrs:  []string{"name*=own", "id*=ownorlease", "name*=lease"},
		labels: []string{"own or lease", "owned or financed"},
	},
	"annual_mileage": {
		attrs:  []string{"name*=mileage", "name*=milesdriven", "id*=mileage"},
		labels: []string{"annual mileage", "miles per year"},
	},
	"accidents": {
		attrs:  []string{"name*=accident", "id*=accident", "name*=claims"},
		labels: []string{"accidents or claims", "accidents"},
	},
	"violations": {
		attrs:  []string{"name*=violation", "id*=violation", "name*=tickets"},
		labels: []string{"moving violations", "tickets or violations"},
	},
	"prior_insurance": {
		attrs:  []string{"name*=priorinsurance", "name*=continuous", "id*=priorinsurance", "id*=prior-insurance"},
		labels: []string{"currently insured", "continuous insurance"},
	},
	"current_insurer": {
		attrs:  []string{"name*=insurer", "name*=currentcarrier", "id*=insurer", "id*=priorcarrier"},
		labels: []string{"current insurance company", "who insures you"},
	},
	"continue_button": {
		attrs:  []string{"data-testid*=continue", "id*=continue", "name*=continue", "type=submit"},
		labels: []string{"continue", "next", "save & continue"},
	},
	"start_quote_button": {
		attrs:  []string{"data-testid*=quote", "id*=qsbutton", "name*=beginquote", "id*=startquote"},
		labels: []string{"get a quote", "start my quote", "get quote", "start quote"},
	},
}
