package enrich

// Prompt text for the structured-extraction call. Data only.

// transcriptSeparator joins the instruction and the transcript body.
const transcriptSeparator = " - Transcript: "

// extractionPrompt asks for one JSON object with the nine enrichment keys.
const extractionPrompt = `
Please analyze the following transcript and extract the details as outlined below. Provide the information in the requested JSON format.
Ensure that **every** attribute in the output JSON is populated, even if some information is not explicitly mentioned.
If a particular detail cannot be determined, make sure to explicitly mention that in the corresponding field with a note indicating that
the information was not available.

If multiple customers, presenters, industries, use cases, problem statements, or solutions are presented in the transcript,
capture **all** of them and structure them accordingly in the output JSON.

- **Customer Name**: Identify the name of the customer or the company name. If multiple customers or companies are mentioned,
    capture each one. If the company name is explicitly mentioned in the introduction or elsewhere in the transcript
    (such as in the presenter's title or role), use that as the customer name.
    - If the company name or customer name is not explicitly stated, infer it from the context, such as:
        - The presenter's title (e.g., "SVP of Products for [CompanyName]") or their reference to their company in the discussion.
        - The mention of any **products** or **services** tied to a specific company.
    - If neither is mentioned or it cannot be inferred, mark it as **"Not Available"**.

- Presenter Name & Title: Identify the name and title of each presenter. If multiple people are presenting at various stages of the
  transcript, capture the name and title of each individual. If not explicitly stated, infer the presenter's name and title based on the
  context or other parts of the transcript where this information may be mentioned.
  If the information cannot be determined, mark it as "Not Available".

- Industry: Specify the industry the customer belongs to. If multiple industries are mentioned, capture each one.
  If the industry is not explicitly mentioned in the introduction,
  infer it from the context or details discussed throughout the transcript (e.g., company products, services, or sector-related keywords).
  If the industry is not identifiable, mark it as "Not Available".

- Use Case: Describe the use case the customer presented. If multiple use cases are mentioned, capture each one.
  If the use case is unclear or not mentioned, note that in the output JSON as "Not Available".

- Problem Statement: Highlight the key problem(s) the customer described. If multiple problem statements are mentioned, capture each one.
  If no problem is explicitly stated, provide an inference based on the conversation or mark it as "Not Available".

- Solution: Detail the solution(s) the customer proposed, formatted in a paragraph style with headers.
  If multiple solutions are mentioned, capture each one.
  If no solution is proposed or discussed, state that in the output JSON as "Not Available".

- AWS Services: Extract all AWS services explicitly mentioned and discussed in detail within the transcript. Only capture services
  if the discussion about the service is in-depth or detailed. If a service is merely mentioned in passing without further explanation, do not capture it.
  For each service, include:
  - The name of the service
  - The timestamp (start time) when the service is first introduced
  - The duration of the discussion about the service (how long the discussion lasts in seconds)
  If the information is not available or no AWS services are mentioned, mark it as "Not Available".

- Summary: Provide a comprehensive summary of the transcript, highlighting the key points and important details.
  Ensure that this summary covers the essence of the conversation, including problems, solutions, and relevant details.
  If the summary is unclear, provide the best interpretation possible.

- Key Points: List important points mentioned in the transcript. For each key point, include the corresponding time stamp and time duration.
  If key points cannot be captured, indicate that in the output with a "Not Available" entry.

Ensure that the extracted information is structured as a JSON object, with **every** field populated according to the transcript
content. If any detail cannot be extracted or inferred, mark that field with "Not Available" and provide a brief explanation where necessary.

Output JSON Format:
` + "```json" + `
{
    "customer_names": [
        "string",  // Capture all customer names if multiple customers are mentioned. If not available, mark as "Not Available"
    ],
    "presenter_details": [
        {
            "name": "string",  // If not available, mark as "Not Available"
            "title": "string"  // If not available, mark as "Not Available"
        }
    ],
    "industries": [
        "string",  // Capture all industries if multiple industries are mentioned. If not available, mark as "Not Available"
    ],
    "use_cases": [
        "string",  // Capture all use cases if multiple use cases are mentioned. If not available, mark as "Not Available"
    ],
    "problem_statements": [
        "string",  // Capture all problem statements if multiple problem statements are mentioned. If not available, mark as "Not Available"
    ],
    "solutions": [
        "string",  // Capture all solutions if multiple solutions are mentioned. If not available, mark as "Not Available"
    ],
    "aws_services": [
        {
            "time_stamp": "string",
            "time_duration": "string",
            "service_name": "string"
        }
    ],
    "summary": "string",  // Provide a comprehensive summary of the content. If not available, mark as "Not Available"
    "key_points": [
        {
            "time_stamp": "string",
            "time_duration": "string",
            "point": "string"
        }
    ]
}
`

// BuildPrompt appends the transcript to the extraction instruction.
func BuildPrompt(transcript string) string {
	return extractionPrompt + transcriptSeparator + transcript
}
