package conversation

import "fmt"

const (
	textChooseProduct      = "Choose the model:"
	textOtherProduct       = "Other (send a link)"
	textSendLink           = "Send the product link from the store."
	textCheckingStock      = "Checking stock..."
	textChooseCapacity     = "Choose the capacity:"
	textChooseColor        = "Choose the color:"
	textSendIMEI           = "Send the IMEI of the device to be traded in."
	textChooseDeviceCap    = "Choose the storage capacity of the device to be traded in:"
	textChooseQuantity     = "How many links do you want?"
	textGenerating         = "Generating link..."
	textGeneratingMultiple = "Generating %d links..."
)

func helpText(generate string) string {
	return fmt.Sprintf("Send /%s to generate a cart link with the trade-in discount.\n"+
		"Choose a model, a capacity and a color, and the link is sent here.", generate)
}

func invalidIMEIText(imei string) string {
	return fmt.Sprintf("IMEI %s is invalid.\n%s", imei, textSendIMEI)
}

func withError(userMessage, prompt string) string {
	return userMessage + "\n\n" + prompt
}

func batchLinkText(n int, url string) string {
	return fmt.Sprintf("Link %d generated: %s", n, url)
}

func singleLinkText(url string) string {
	return "Link generated: " + url
}
