package models

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&Parish{},
		&GatewayConfig{},
		&Event{},
		&Participant{},
		&Registration{},
		&HealthProfile{},
		&RegistrationHistory{},
		&Payment{},
		&GatewayEvent{},
		&Staff{},
		&APIKey{},
	}
}
