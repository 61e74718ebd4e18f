package templates

import "os"

const configTemplate = `
home_dir: ~/.soundscribe
models_dir: ~/.soundscribe/models
environment: development
workers: 4

runtime:
  host: localhost
  port: 8876
  timeout: 500

models:
  CLAP_Jan23:
    source: hf:microsoft/msclap
    weights: CLAP_weights_2023.pth
`

func GetConfigTemplate() string {
	return configTemplate
}

func WriteConfig(path string) error {
	configTemplate := GetConfigTemplate()

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(configTemplate)
	if err != nil {
		return err
	}

	return nil
}
