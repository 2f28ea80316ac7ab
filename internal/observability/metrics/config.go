package metrics

// Config labels every series this process registers.
type Config struct {
	ServiceName string
	Environment string
}

func (c Config) constLabels() map[string]string {
	service := c.ServiceName
	if service == "" {
		service = "retailsales"
	}
	env := c.Environment
	if env == "" {
		env = "unknown"
	}
	return map[string]string{"service": service, "env": env}
}
