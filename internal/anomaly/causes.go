package anomaly

// classifyCause maps the deviation direction, hour of day, and magnitude to
// advisory text. The mapping is a pure function so identical inputs always
// produce identical output.
func classifyCause(spike bool, hour int, deviationPercent float64) (cause, recommendation string) {
	if !spike {
		switch {
		case hour >= 0 && hour <= 5:
			return "Lower than usual overnight load",
				"If this is unexpected, check that your meter is reporting correctly"
		case deviationPercent <= -80:
			return "Consumption far below normal, possible sensor or meter fault",
				"Verify the sensor connection and recent readings"
		default:
			return "Appliances that normally run at this hour appear to be off",
				"No action needed if you are away or devices are intentionally off"
		}
	}

	if deviationPercent >= 100 {
		return "High-draw appliance running (AC, space heater, or EV charger)",
			"Check for appliances running outside their usual schedule"
	}

	switch {
	case hour >= 0 && hour <= 5:
		return "Appliance possibly left running overnight",
			"Check for devices left on, such as heaters, ovens, or entertainment systems"
	case hour >= 6 && hour <= 9:
		return "Heavier than usual morning usage, likely water heating or HVAC",
			"Consider staggering high-draw appliances outside the morning peak"
	case hour >= 10 && hour <= 16:
		return "Elevated midday load, likely HVAC or laundry",
			"Shift flexible loads to off-peak hours to reduce cost"
	default:
		return "Multiple appliances active during the evening peak",
			"Evening rates are highest; defer flexible loads where possible"
	}
}
