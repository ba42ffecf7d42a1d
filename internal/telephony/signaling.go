package telephony

import (
	"encoding/xml"
	"fmt"
)

type signalingResponse struct {
	XMLName xml.Name         `xml:"Response"`
	Connect signalingConnect `xml:"Connect"`
}

type signalingConnect struct {
	Stream signalingStream `xml:"Stream"`
}

type signalingStream struct {
	URL        string            `xml:"url,attr"`
	Parameters []streamParameter `xml:"Parameter"`
}

type streamParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// SignalingXML builds the webhook answer that connects a call to this
// service: it directs the carrier to open a media stream to
// wss://{publicHost}/media/{callID}, tagged with the call id and the
// caller's number.
func SignalingXML(publicHost, callID, callerPhone string) ([]byte, error) {
	doc := signalingResponse{
		Connect: signalingConnect{
			Stream: signalingStream{
				URL: fmt.Sprintf("wss://%s/media/%s", publicHost, callID),
				Parameters: []streamParameter{
					{Name: "call_sid", Value: callID},
					{Name: "customer_phone", Value: callerPhone},
				},
			},
		},
	}

	body, err := xml.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("telephony: signaling xml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
